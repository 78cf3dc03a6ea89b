package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/agenthands/kgfuse/internal/app"
	"github.com/agenthands/kgfuse/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline stages over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return Serve(ctx, a)
		})
	},
}

// Serve blocks until ctx is done, then drains in-flight requests.
func Serve(ctx context.Context, a *app.App) error {
	if a.Config.Log.Mode == "prod" || a.Config.Log.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           server.NewServer(a.Engine, a.Log).SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.Log.Info("starting server", "port", a.Config.Server.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Log.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
