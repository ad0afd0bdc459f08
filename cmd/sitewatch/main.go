// sitewatch runs the website-availability monitoring core: the Scheduler,
// the DebugSessionEngine, and the minimal HTTP surface needed to expose
// health, metrics and live debug-session viewing. Grounded on the
// teacher's cmd/control-plane/main.go: zap construction, signal-driven
// shutdown, an http.ServeMux with Go 1.22+ pattern routing, and a bounded
// graceful Shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/breaker"
	"github.com/sitewatch/monitor/internal/broadcast"
	"github.com/sitewatch/monitor/internal/browserpool"
	"github.com/sitewatch/monitor/internal/config"
	"github.com/sitewatch/monitor/internal/debugsession"
	"github.com/sitewatch/monitor/internal/logging"
	"github.com/sitewatch/monitor/internal/probe"
	"github.com/sitewatch/monitor/internal/scheduler"
	"github.com/sitewatch/monitor/internal/service"
	"github.com/sitewatch/monitor/internal/sla"
	"github.com/sitewatch/monitor/internal/store"
	"github.com/sitewatch/monitor/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := os.Getenv("SITEWATCH_CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("fatal error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.DataDir + "/sitewatch.db")
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tracerShutdown, err := telemetry.InitTraceProvider(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		return fmt.Errorf("init trace provider: %w", err)
	}
	defer tracerShutdown(shutdownCtx)

	br := breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.CooldownDuration(), logger)
	httpProbe := probe.NewHTTPProbe(cfg.Probe.Retries, logger)

	var browserPool *browserpool.Pool
	var browserProbe *probe.BrowserProbe
	browserPool, err = browserpool.New(browserpool.Options{
		Headless:       cfg.Browser.Headless,
		ExecutablePath: cfg.Browser.ExecutablePath,
	}, logger)
	if err != nil {
		logger.Warn("browser pool unavailable, debug sessions and browser probing disabled", zap.Error(err))
	} else {
		defer browserPool.Close()
		browserProbe = probe.NewBrowserProbe(browserPool, logger)
		go superviseBrowserPool(ctx, browserPool, logger)
	}

	bc := broadcast.New(256, logger)

	var dbgEngine *debugsession.Engine
	if browserPool != nil {
		dbgEngine = debugsession.NewEngine(st, browserPool, bc, debugsession.Config{
			FlushInterval:         cfg.Debug.FlushInterval(),
			MaxDuration:           time.Duration(cfg.Debug.MaxDurationSeconds) * time.Second,
			BodyByteLimit:         cfg.Debug.BodyByteLimit,
			MaxConcurrentSessions: cfg.Debug.MaxConcurrentSessions,
		}, logger)
		defer dbgEngine.Close()
	}

	sched := scheduler.New(st, br, httpProbe, browserProbe, dbgEngine, cfg.Scheduler.GraceSeconds, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error("scheduler stop error", zap.Error(err))
		}
	}()

	var cacheTTL time.Duration
	if cfg.SLA.CacheEnabled {
		cacheTTL = cfg.SLA.CacheTTL()
	}
	analytics := sla.New(st, sla.DefaultPercentiles, cacheTTL)

	svc := service.New(st, sched, dbgEngine, analytics, bc, logger)

	mux := buildMux(svc, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting sitewatch", zap.String("addr", cfg.ListenAddr), zap.String("version", version), zap.String("commit", commit))

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
	return nil
}

// superviseBrowserPool polls the browser pool's health and reinitializes it
// after a crash (spec.md §7's "fatal" condition: blocks new debug session
// starts until the pool recovers). Runs for the process lifetime.
func superviseBrowserPool(ctx context.Context, pool *browserpool.Pool, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pool.Healthy() {
				continue
			}
			logger.Warn("browser pool unhealthy, attempting reinitialize")
			if err := pool.Reinitialize(); err != nil {
				logger.Error("browser pool reinitialize failed", zap.Error(err))
				continue
			}
			logger.Info("browser pool reinitialized")
		}
	}
}

// buildMux wires the health/metrics/live-view transport surface this module
// owns directly. The REST CRUD surface over service.Service is out of
// scope per spec.md §6 ("the REST surface is out of scope; only the
// contract to it is specified") and is left to an external collaborator.
func buildMux(svc *service.Service, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /ws/debug/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("sessionId"), 10, 64)
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		svc.Broadcaster.ViewerHandler(id)(w, r)
	})

	return mux
}
