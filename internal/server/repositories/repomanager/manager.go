// Package repomanager wires the concrete repositories to a database
// handle. Services ask the manager for repositories bound to either the
// shared *sql.DB or a transaction, which keeps the token-redeem and
// counter-increment statements in one transaction.
package repomanager

import (
	"github.com/speakingcat21/filesoldier/internal/dbx"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/files"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/tokens"
)

type RepositoryManager interface {
	Files(db dbx.DBTX) files.Repository
	Tokens(db dbx.DBTX) tokens.Repository
}
