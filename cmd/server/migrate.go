package server

import (
	"context"
	"time"

	"github.com/rtolen/vairify-guard/internal/api"
	"github.com/rtolen/vairify-guard/internal/guard/storage"
)

func migrateDatabase(s *api.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return storage.Migrate(ctx, s.DB)
}
