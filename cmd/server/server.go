package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/api/router"
	"github.com/rtolen/vairify-guard/internal/config"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Starts the guard session monitor server",
		Run: func(_ *cobra.Command, _ []string) {
			run(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before starting")

	return cmd
}

func run(migrate bool) {
	cfg := config.DefaultServiceConfigFromEnv()

	zerolog.SetGlobalLevel(cfg.Logger.Level)
	if cfg.Logger.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter())
	}

	s, err := api.InitNewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	if migrate {
		if err := migrateDatabase(s); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	router.Init(s)

	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if errs := s.Shutdown(ctx); len(errs) > 0 {
		for _, err := range errs {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(1)
	}
}
