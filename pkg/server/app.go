package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"Tehama/internal/handler/api"
	mid "Tehama/internal/middleware"
	"Tehama/internal/usecase"
	pkgch "Tehama/pkg/clickhouse"
	"Tehama/pkg/config"
	xhttp "Tehama/pkg/http"
	httpmw "Tehama/pkg/http/middleware"
	applogger "Tehama/pkg/logger"
	pkgqueue "Tehama/pkg/queue"
)

// App encapsulates the entire application lifecycle: the quote collector
// feeding the price book, the scan queue workers, and the HTTP surface.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	collector  *usecase.QuoteCollector
	pipeline   *mid.QuotePipeline
	scanQueue  *pkgqueue.RedisQueue
	chClient   *pkgch.Client
	httpServer *xhttp.Server

	apiHandler xhttp.Handler
	ops        *api.OpsHandler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	collector *usecase.QuoteCollector,
	pipeline *mid.QuotePipeline,
	scanQueue *pkgqueue.RedisQueue,
	chClient *pkgch.Client,
	apiHandler xhttp.Handler,
	ops *api.OpsHandler,
) *App {
	return &App{
		cfg:        cfg,
		logger:     lgr,
		collector:  collector,
		pipeline:   pipeline,
		scanQueue:  scanQueue,
		chClient:   chClient,
		apiHandler: apiHandler,
		ops:        ops,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	a.httpServer = xhttp.NewServer(a.apiHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if a.ops != nil {
		e := a.httpServer.Echo()
		mw := httpmw.Metrics(l, 500*time.Millisecond)
		e.GET("/health", echo.WrapHandler(mw(a.ops.Health())))
		e.GET("/ops/recommendations", echo.WrapHandler(mw(a.ops.History())))
		e.GET("/ops/cache/stats", echo.WrapHandler(mw(a.ops.CacheStats())))
		e.POST("/ops/cache/invalidate", echo.WrapHandler(mw(a.ops.CacheInvalidate())))
	}

	// Start quote pipeline flushing and the collector
	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}
	if a.collector != nil {
		go func() {
			if err := a.collector.Run(ctx); err != nil && ctx.Err() == nil {
				l.Error("quote collector error", applogger.Error(err))
			}
		}()
		l.Info("quote collector started", applogger.Strings("symbols", a.cfg.MarketData.Symbols))
	}

	// Start scan queue workers if configured
	if a.scanQueue != nil {
		if err := a.scanQueue.Start(); err != nil {
			l.Error("scan queue start error", applogger.Error(err))
		} else {
			l.Info("scan queue started", applogger.Int("workers", a.cfg.Pipeline.ScanWorkers))
		}
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	l := a.logger
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("failed to create logger: %v", err)
			return err
		}
	}
	l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	if a.scanQueue != nil {
		if err := a.scanQueue.Stop(shutdownCtx); err != nil {
			l.Warn("scan queue stop error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
