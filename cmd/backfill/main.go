// Command backfill fetches historical odds for a fixed list of fixtures and
// writes them to a CSV file, optionally mirroring the batch to S3.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"oddsflow/config"
	"oddsflow/internal/backfill"
	"oddsflow/internal/store"
	"oddsflow/logger"
	"oddsflow/models"
	"oddsflow/reader/rest"
	"oddsflow/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	fixturesPath := flag.String("fixtures", "", "Fixture list, overrides backfill.fixtures_file")
	output := flag.String("output", "", "CSV output path, overrides backfill.output")
	quota := flag.Int("quota", 0, "Stop after this many fixtures with odds, overrides backfill.quota")
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

	if *fixturesPath != "" {
		cfg.Backfill.FixturesFile = *fixturesPath
	}
	if *output != "" {
		cfg.Backfill.Output = *output
	}
	if *quota > 0 {
		cfg.Backfill.Quota = *quota
	}

	set, err := config.LoadFixtureSet(cfg.Backfill.FixturesFile)
	if err != nil {
		log.WithError(err).Error("failed to load fixtures")
		return 1
	}
	if len(set.Fixtures) == 0 {
		log.WithField("path", cfg.Backfill.FixturesFile).Error("fixture list is empty")
		return 1
	}

	sportsbooks := set.Sportsbooks
	if len(sportsbooks) == 0 {
		sportsbooks = cfg.Backfill.Sportsbooks
	}
	if len(sportsbooks) == 0 {
		sportsbooks = cfg.Stream.Sportsbooks
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := rest.NewClient(cfg.Rest, nil, log)

	leagues, err := client.Leagues(ctx, cfg.Stream.Sport)
	if err != nil {
		log.WithError(err).Warn("failed to list leagues")
	} else {
		log.WithFields(logger.Fields{
			"sport":   cfg.Stream.Sport,
			"leagues": len(leagues),
		}).Info("leagues available")
	}

	start := time.Now()
	pool := backfill.NewPool(client, cfg.Backfill.Workers, cfg.Backfill.Quota, sportsbooks, log)
	fixtures, stats, err := pool.Run(ctx, set.Fixtures)
	if err != nil {
		log.WithError(err).Error("backfill failed")
		return 1
	}

	rows := backfill.Flatten(fixtures)
	if err := writer.WriteCSVFile(cfg.Backfill.Output, rows); err != nil {
		log.WithError(err).Error("failed to write backfill csv")
		return 1
	}

	entry := log.WithComponent("backfill")
	logger.LogPerformanceEntry(entry, "backfill", "run", time.Since(start), logger.Fields{
		"workers": cfg.Backfill.Workers,
	})
	logger.LogDataFlowEntry(entry, "rest", cfg.Backfill.Output, len(rows), "odds")
	entry.WithFields(logger.Fields{
		"requested": stats.Requested,
		"committed": stats.Committed,
		"empty":     stats.Empty,
		"failed":    stats.Failed,
		"discarded": stats.Discarded,
		"rows":      len(rows),
		"output":    cfg.Backfill.Output,
	}).Info("backfill completed")

	if cfg.Storage.S3.Enabled && len(rows) > 0 {
		if err := mirrorToS3(ctx, cfg, rows, log); err != nil {
			log.WithError(err).Error("failed to upload backfill to S3")
			return 1
		}
	}

	return 0
}

// mirrorToS3 loads the rows into a scratch store so the upload goes through
// the same typed snapshot the live sink writes.
func mirrorToS3(ctx context.Context, cfg *config.Config, rows []models.RawRecord, log *logger.Log) error {
	records := store.New()
	records.Upsert(rows, models.StatusActive)

	sink, err := writer.NewS3Sink(ctx, cfg)
	if err != nil {
		return err
	}

	snap := models.Snapshot{
		ID:      uuid.NewString(),
		TakenAt: time.Now().UTC(),
		Filter:  models.FilterAll,
		Records: records.Snapshot(models.FilterAll),
		Summary: records.Summary(),
	}
	if err := sink.Export(ctx, snap); err != nil {
		return err
	}
	log.WithComponent("backfill").WithField("snapshot_id", snap.ID).Info("backfill mirrored to S3")
	return nil
}
