package repomanager

import (
	"context"
	"database/sql"

	"github.com/viaifoundation/ttsgate/internal/dbx"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/generations"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/identities"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/usage"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
	Usage(db dbx.DBTX) usage.Repository
	Generations(db dbx.DBTX) generations.Repository
}
