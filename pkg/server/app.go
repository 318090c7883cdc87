package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/usecase"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/config"
	xhttp "github.com/gonghuaze999-design/QuantAgrify/pkg/http"
	pkgkafka "github.com/gonghuaze999-design/QuantAgrify/pkg/kafka"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	manager     *connection.Manager
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	backfill    *usecase.BackfillProcessor
	l           *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	manager *connection.Manager,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.BackfillHandler,
	backfill *usecase.BackfillProcessor,
	l *applogger.Logger,
) *App {
	a := &App{
		cfg:         cfg,
		manager:     manager,
		httpHandler: handler,
		consumer:    consumer,
		backfill:    backfill,
		l:           l,
	}
	if kh != nil {
		a.kh = kh
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ambient connect at startup. A failed backend leaves the engine
	// degraded but serving; the status endpoint reports the reason.
	if err := a.manager.Connect(ctx, nil); err != nil {
		a.l.Warn("startup connect failed, serving degraded", applogger.Error(err))
	} else {
		st := a.manager.State()
		a.l.Info("backends connected",
			applogger.Bool("warehouse_ready", st.WarehouseReady),
			applogger.Bool("oracle_ready", st.OracleReady),
			applogger.String("resolved_from", string(st.ResolvedFrom)),
		)
	}

	serverOpts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, xhttp.WithMetrics(a.cfg.Metrics.Path, a.l, 500*time.Millisecond))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, serverOpts...)

	// Start backfill pipeline
	if a.backfill != nil {
		a.backfill.Start(ctx)
		a.l.Info("backfill pipeline started", applogger.String("backend", a.cfg.Backfill.Backend))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Drains buffered bars before releasing the publisher.
	if a.backfill != nil {
		a.backfill.Close()
	}

	if err := a.manager.Close(); err != nil {
		a.l.Warn("backend close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}
