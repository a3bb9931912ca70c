package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/api"
	"github.com/vrsandeep/transdoc-go/internal/core"
	"github.com/vrsandeep/transdoc-go/internal/logging"
)

func main() {
	logging.Setup("info", "console")

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Fatal error during application setup")
	}
	defer app.Close()

	cfg := app.Config()
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Recover jobs from the last run, then start the workers and schedules.
	if err := app.Start(); err != nil {
		log.Fatal().Err(err).Msg("Could not start background services")
	}

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),
	}

	// --- Graceful Shutdown ---
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Starting web server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Could not start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Queued jobs stay Pending and are picked up again on the next start.
	if err := app.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Pipeline did not stop cleanly")
	}

	log.Info().Msg("Server exiting.")
}
