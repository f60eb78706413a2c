package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/config"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
	"github.com/spf13/cobra"
)

func newMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the guard database schema",
		Run: func(_ *cobra.Command, _ []string) {
			cfg := config.DefaultServiceConfigFromEnv()

			database, err := api.NewDB(cfg)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to connect to database")
			}
			defer database.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := storage.Migrate(ctx, database); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}
			log.Info().Msg("Migrations applied")
		},
	}
}
