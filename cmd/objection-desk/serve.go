package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/objection-desk/internal/analysis"
	"github.com/joelkehle/objection-desk/internal/backend"
	"github.com/joelkehle/objection-desk/internal/config"
	"github.com/joelkehle/objection-desk/internal/desk"
	"github.com/joelkehle/objection-desk/internal/intake"
	"github.com/joelkehle/objection-desk/internal/metrics"
	"github.com/joelkehle/objection-desk/internal/render"
	"github.com/joelkehle/objection-desk/internal/settings"
	"github.com/joelkehle/objection-desk/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the objection desk web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// app is the wired object graph behind the HTTP handler.
type app struct {
	handler http.Handler
	runner  *desk.Runner
	store   settings.Store
	cancel  context.CancelFunc
}

func newApp(c *config.Config) (*app, error) {
	m := metrics.New()
	client := backend.NewClient(backend.Config{
		BaseURL:       c.Backend.URL,
		Timeout:       time.Duration(c.Backend.TimeoutSecs) * time.Second,
		RatePerSecond: c.Backend.RatePerSecond,
		Burst:         c.Backend.Burst,
		Retry:         c.Backend.Retry(),
		Metrics:       m,
	})

	store, err := settings.Open(c.Settings.Backend, c.Settings.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open settings store")
	}

	// Runs outlive the request that started them but stop on shutdown.
	runCtx, cancel := context.WithCancel(context.Background())
	session := desk.NewSession(render.NewRenderer(), m)
	runner := desk.NewRunner(runCtx, analysis.NewPipeline(client, m), session, store)

	handler := desk.NewServer(desk.Options{
		Session:  session,
		Runner:   runner,
		Intake:   intake.New(client, time.Duration(c.Intake.CacheTTLMins)*time.Minute, m),
		Settings: store,
		PDF:      desk.NewChromiumPDFRenderer(c.Export.ChromePath, time.Duration(c.Export.TimeoutSecs)*time.Second),
		Metrics:  m,
	})
	return &app{handler: handler, runner: runner, store: store, cancel: cancel}, nil
}

// Close stops in-flight runs and releases the settings store.
func (a *app) Close() error {
	a.cancel()
	a.runner.Wait()
	return a.store.Close()
}

func serve(ctx context.Context, c *config.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, c.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			zap.L().Warn("tracing shutdown", zap.Error(err))
		}
	}()

	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			zap.L().Warn("close app", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              c.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("starting server",
			zap.String("addr", c.Server.Addr),
			zap.String("backend", c.Backend.URL),
			zap.String("settings_backend", c.Settings.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		timeout := time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
