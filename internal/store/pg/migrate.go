package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/dropDatabas3/melody/internal/observability/logger"
	migrations "github.com/dropDatabas3/melody/migrations/postgres"
)

// Migrate aplica las migraciones pendientes y retorna cuántas corrió.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(database.DialectPostgres, db, migrations.FS)
	if err != nil {
		return 0, fmt.Errorf("pg: goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("pg: apply migrations: %w", err)
	}
	log := logger.From(ctx).With(logger.Component("store.pg"))
	for _, r := range results {
		log.Info("migration applied",
			logger.String("source", r.Source.Path),
			logger.Duration(r.Duration),
		)
	}
	return len(results), nil
}

// MigrationVersion retorna la versión aplicada del esquema.
func (s *Store) MigrationVersion(ctx context.Context) (int64, error) {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(database.DialectPostgres, db, migrations.FS)
	if err != nil {
		return 0, fmt.Errorf("pg: goose provider: %w", err)
	}
	return provider.GetDBVersion(ctx)
}

// MigrateDown revierte la última migración aplicada.
func (s *Store) MigrateDown(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	provider, err := goose.NewProvider(database.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("pg: goose provider: %w", err)
	}
	r, err := provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("pg: rollback: %w", err)
	}
	logger.From(ctx).Info("migration rolled back",
		logger.Component("store.pg"),
		logger.String("source", r.Source.Path),
	)
	return nil
}
