package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/purchase-predictor/internal/api"
	"github.com/sells-group/purchase-predictor/internal/config"
	"github.com/sells-group/purchase-predictor/internal/ranking"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the most-purchased services ranking over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine, err := loadEngine(ctx, cfg, cfg.Startup.FailFast)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(engine, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("ready", engine.Ready() == nil),
			zap.Int("services", engine.Rows()),
		)
		return runServer(ctx, srv)
	},
}

// runServer serves until ctx is cancelled, then shuts srv down and returns
// once in-flight requests have drained or the shutdown timeout expires.
func runServer(ctx context.Context, srv *http.Server) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	<-done
	return nil
}

// loadEngine loads the artifacts named by c. With failFast a load failure
// is returned; otherwise the degraded engine is kept and every ranking
// request fails until the process is restarted with valid artifacts.
func loadEngine(ctx context.Context, c *config.Config, failFast bool) (*ranking.Engine, error) {
	engine, err := ranking.Load(ctx, c)
	if err != nil {
		if failFast {
			return nil, eris.Wrap(err, "load artifacts")
		}
		zap.L().Warn("serving in degraded state", zap.Error(err))
	}
	return engine, nil
}

func buildRouter(engine *ranking.Engine, c *config.Config) http.Handler {
	var metrics *api.Metrics
	if c.Server.Metrics {
		metrics = api.NewMetrics()
	}
	return api.NewRouter(engine, api.Options{
		AllowedOrigins: c.Server.AllowedOrigins,
		TopK:           c.Ranking.TopK,
		RateLimit:      c.Server.RateLimit,
		RateBurst:      c.Server.RateBurst,
		Metrics:        metrics,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
