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

	"github.com/aliuyar1234/seatdesk/internal/app"
	"github.com/aliuyar1234/seatdesk/internal/config"
	"github.com/aliuyar1234/seatdesk/internal/maintenance"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		_ = godotenv.Load()
		os.Exit(runAdmin(os.Args[2:]))
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	scheduler, err := maintenance.NewScheduler(maintenance.Options{
		Dev:             cfg.IsDev(),
		InviteRetention: time.Duration(cfg.InviteRetentionDays) * 24 * time.Hour,
	}, application.Teams, application.Licenses)
	if err != nil {
		application.Close()
		fmt.Fprintf(os.Stderr, "Failed to setup maintenance jobs: %v\n", err)
		os.Exit(1)
	}
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Start()
	}()

	exitCode := 0
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			exitCode = 1
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	// Running jobs finish before the pool they use is closed.
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		exitCode = 1
	}
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}
