package repomanager

import (
	"context"
	"database/sql"

	"github.com/clippio/accounts/internal/dbx"
	"github.com/clippio/accounts/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX handle, so the same
// repository code runs against a plain connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
