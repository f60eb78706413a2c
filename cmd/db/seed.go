package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/config"
	"github.com/spf13/cobra"
)

// seed inserts development fixtures: a small guardian directory to exercise
// the notification path locally.
func newSeed() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Inserts development fixtures",
		Run: func(_ *cobra.Command, _ []string) {
			cfg := config.DefaultServiceConfigFromEnv()

			database, err := api.NewDB(cfg)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to connect to database")
			}
			defer database.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			guardians := []struct {
				id, name, email, phone string
			}{
				{"guardian-dev-1", "Dana Dev", "dana@example.com", "+15550100"},
				{"guardian-dev-2", "Riley Dev", "riley@example.com", "+15550101"},
			}
			for _, g := range guardians {
				_, err := database.ExecContext(ctx, `
					INSERT INTO guard_guardians (guardian_id, name, email, phone)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (guardian_id) DO UPDATE SET name = $2, email = $3, phone = $4`,
					g.id, g.name, g.email, g.phone)
				if err != nil {
					log.Fatal().Err(err).Str("guardian_id", g.id).Msg("Failed to seed guardian")
				}
			}
			log.Info().Int("guardians", len(guardians)).Msg("Fixtures seeded")
		},
	}
}
