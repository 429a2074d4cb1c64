// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and the goose schema migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/viaifoundation/ttsgate/internal/dbx"
	"github.com/viaifoundation/ttsgate/internal/server/migrations"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/generations"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/identities"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/usage"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories bound to
// either the pool or an open transaction.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Identities(db dbx.DBTX) identities.Repository {
	return identities.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Usage(db dbx.DBTX) usage.Repository {
	return usage.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Generations(db dbx.DBTX) generations.Repository {
	return generations.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema. It is idempotent: goose skips
// versions already recorded in its version table.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
