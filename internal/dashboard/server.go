package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"oddsflow/config"
	"oddsflow/internal/metrics"
	"oddsflow/logger"
	"oddsflow/models"
)

// Source is the read side of the record store served by the dashboard.
type Source interface {
	Snapshot(filter models.StatusFilter) []models.Record
	Summary() models.StoreSummary
	Get(id string) (models.Record, bool)
}

// Server hosts the Gin-powered monitoring dashboard for oddsflow.
type Server struct {
	cfg           config.DashboardConfig
	source        Source
	hub           *Hub
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server

	// Prometheus controls whether /metrics is routed. NewServer enables it.
	Prometheus bool
}

// NewServer constructs a dashboard server when the dashboard feature is enabled.
// When the dashboard is disabled the returned server will be nil. hub may be nil,
// in which case the /ws route is not registered.
func NewServer(cfg config.DashboardConfig, source Source, hub *Hub, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if source == nil {
		return nil, errors.New("dashboard requires a record source")
	}

	cfg.Addr = normalizeAddress(cfg.Addr)

	if cfg.LogLimit <= 0 {
		cfg.LogLimit = 200
	}

	metricStore := newMetricStore(cfg.LogLimit)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogLimit)
	log.AddHook(logStore)

	return &Server{
		cfg:           cfg,
		source:        source,
		hub:           hub,
		log:           log,
		metricStore:   metricStore,
		logStore:      logStore,
		metricHandler: handlerID,
		Prometheus:    true,
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the provided context is
// cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address": s.cfg.Addr,
	}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Addr
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"app": appName,
			"routes": []string{
				"/api/snapshot", "/api/summary", "/api/records/:id",
				"/api/metrics", "/api/logs", "/metrics", "/ws",
			},
		})
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/api/snapshot", s.handleSnapshot)

	router.GET("/api/summary", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.Summary())
	})

	router.GET("/api/records/:id", func(c *gin.Context) {
		rec, ok := s.source.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		metricsSnapshot := s.metricStore.snapshot()
		payload := make([]gin.H, 0, len(metricsSnapshot))
		for _, m := range metricsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		level := logrus.TraceLevel
		if raw := c.Query("level"); raw != "" {
			parsed, err := logrus.ParseLevel(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			level = parsed
		}
		logsSnapshot := s.logStore.filter(level, c.Query("component"))
		payload := make([]gin.H, 0, len(logsSnapshot))
		for _, l := range logsSnapshot {
			payload = append(payload, gin.H{
				"timestamp": l.Timestamp.Format(time.RFC3339Nano),
				"level":     l.Level,
				"component": l.Component,
				"message":   l.Message,
				"fields":    l.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"logs": payload})
	})

	if s.Prometheus {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	if s.hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			s.hub.HandleWS(c.Writer, c.Request)
		})
	}

	return router, nil
}

func (s *Server) handleSnapshot(c *gin.Context) {
	filter, err := models.ParseStatusFilter(c.DefaultQuery("filter", "all"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records := s.source.Snapshot(filter)
	total := len(records)

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		if limit < len(records) {
			records = records[:limit]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"filter":  filter,
		"total":   total,
		"records": records,
	})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
