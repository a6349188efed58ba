package repomanager

import (
	"context"
	"database/sql"

	"github.com/yanglog/yanglog/internal/dbx"
	"github.com/yanglog/yanglog/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, so a workflow can switch to a tx without knowing the backend.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
