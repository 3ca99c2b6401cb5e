package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiffinbox/backend/internal/auth"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/config"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/migration"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/orders"
	"github.com/tiffinbox/backend/internal/pause"
	"github.com/tiffinbox/backend/internal/repository"
	"github.com/tiffinbox/backend/internal/scheduler"
)

// apiKeyStore manages keys for the internal API.
type apiKeyStore interface {
	Create(ctx context.Context, k *models.APIKey) error
	List(ctx context.Context) ([]*models.APIKey, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// backend is what the commands operate on.
type backend struct {
	Ledger    ledger.Service
	Projector *scheduler.Projector
	Tokens    auth.Service
	APIKeys   apiKeyStore
	// Migrate applies (steps == 0) or rolls back (steps > 0) migrations.
	Migrate func(steps int) error
	Version func() (uint, bool, error)
	Close   func()
}

type connectFunc func(ctx context.Context, cfg *config.Config) (*backend, error)

func connectPostgres(ctx context.Context, cfg *config.Config) (*backend, error) {
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach postgres: %w", err)
	}

	l := ledger.NewService(ledger.NewRepository(pool, repository.NewCreditRepo(pool)), ledger.WithLocation(loc))
	pauses := pause.NewService(pause.NewRepository(pool), l, clock.Real(), loc, nil)
	ord := orders.NewService(orders.NewRepository(pool), nil, nil)
	projector := scheduler.NewProjector(l, pauses, ord, nil,
		scheduler.WithLocation(loc), scheduler.WithHorizon(cfg.ProjectionHorizonDays))

	return &backend{
		Ledger:    l,
		Projector: projector,
		Tokens:    auth.NewService(cfg.JWTSecret, l),
		APIKeys:   repository.NewAPIKeyRepo(pool),
		Migrate: func(steps int) error {
			if steps == 0 {
				return migration.Up(pool)
			}
			return migration.Down(pool, steps)
		},
		Version: func() (uint, bool, error) { return migration.Version(pool) },
		Close:   pool.Close,
	}, nil
}

// parseTTL accepts Go durations plus a "d" suffix for days.
func parseTTL(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
