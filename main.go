package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"oddsflow/config"
	"oddsflow/internal/channel"
	"oddsflow/internal/dashboard"
	"oddsflow/internal/metrics"
	"oddsflow/internal/store"
	"oddsflow/logger"
	"oddsflow/models"
	"oddsflow/reader/rest"
	"oddsflow/reader/stream"
	"oddsflow/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		return 1
	}

	log.WithFields(logger.Fields{
		"service": cfg.Oddsflow.Name,
		"version": cfg.Oddsflow.Version,
		"env":     config.AppEnvironment(),
		"sport":   cfg.Stream.Sport,
	}).Info("starting oddsflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(cfg.Channels.StatusBuffer)
	defer channels.Close()

	go channels.StartMetricsReporting(ctx, 5*time.Second)
	go channel.LogStatusEvents(ctx, channels.Status, log)

	if len(cfg.Stream.Leagues) > 0 {
		client := rest.NewClient(cfg.Rest, nil, log)
		if err := client.ValidateLeagues(ctx, cfg.Stream.Sport, cfg.Stream.Leagues); err != nil {
			log.WithComponent("main").WithError(err).Warn("league validation failed, streaming with configured leagues")
		}
	}

	records := store.New()
	cursor := models.NewStreamCursor(cfg.Stream.LastEntryID)
	session := stream.NewSession(nil, cfg.Stream, cursor, records, channels, log)
	supervisor := stream.NewSupervisor(session, cfg.Backoff, log)
	supervisor.OnBackoff = func(attempt int, delay time.Duration, res stream.Result) {
		last, _ := cursor.Get()
		log.WithComponent("main").WithFields(logger.Fields{
			"attempt":       attempt,
			"delay":         delay.String(),
			"reason":        res.Reason.String(),
			"last_entry_id": last,
		}).Debug("resuming from cursor after backoff")
	}

	sinks, closers, err := buildSinks(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to build export sinks")
		return 1
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	var hub *dashboard.Hub
	if cfg.Dashboard.Enabled {
		hub = dashboard.NewHub(log)
		sinks = append(sinks, hub)
	}

	consumer, err := writer.NewConsumer(records, cfg.Consumer, sinks, log)
	if err != nil {
		log.WithError(err).Error("failed to create snapshot consumer")
		return 1
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, records, hub, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		return 1
	}

	if dash != nil {
		dash.Prometheus = cfg.Metrics.Prometheus
	}

	var wg sync.WaitGroup
	fatal := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := supervisor.Run(ctx); err != nil {
			fatal <- err
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start snapshot consumer")
		return 1
	}

	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx, cfg.Oddsflow.Name); err != nil {
				log.WithComponent("dashboard").WithError(err).Error("dashboard stopped")
			}
		}()
	}

	log.WithFields(logger.Fields{
		"sinks":     len(sinks),
		"dashboard": dash.Address(),
	}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-fatal:
		log.WithError(err).Error("stream stopped with a fatal error")
		if config.IsConfigurationError(err) {
			log.Error("check the stream section of the configuration")
		}
		exitCode = 1
	}

	log.Info("starting graceful shutdown")
	supervisor.Stop()
	cancel()

	log.Info("stopping snapshot consumer")
	consumer.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	summary := records.Summary()
	log.WithFields(logger.Fields{
		"records":       summary.Records,
		"total_updates": summary.TotalUpdates,
		"locked":        summary.LockedCount,
	}).Info("oddsflow stopped")
	return exitCode
}

// buildSinks wires every enabled export target. The returned closers release
// sink resources after the consumer has stopped.
func buildSinks(ctx context.Context, cfg *config.Config, log *logger.Log) ([]writer.Sink, []func(), error) {
	var (
		sinks   []writer.Sink
		closers []func()
	)

	if cfg.Export.Table.Enabled {
		sinks = append(sinks, writer.NewTableSink(os.Stdout, cfg.Export.Table.Limit))
	}

	if cfg.Export.CSV.Enabled {
		sinks = append(sinks, writer.NewCSVSink(cfg.Export.CSV.Path, log))
	}

	if cfg.Storage.S3.Enabled {
		s3Sink, err := writer.NewS3Sink(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s3Sink)
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping S3 sink")
	}

	if cfg.Storage.Kafka.Enabled {
		kafkaSink, err := writer.NewKafkaSink(cfg.Storage.Kafka)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, kafkaSink)
		closers = append(closers, func() {
			if err := kafkaSink.Close(); err != nil {
				log.WithComponent("main").WithError(err).Warn("failed to close kafka writer")
			}
		})
	}

	if cfg.Metrics.CloudWatch.Enabled {
		publisher, err := metrics.NewCloudWatchPublisher(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, publisher)
	}

	return sinks, closers, nil
}
