package data

import (
	"context"
	"database/sql"

	"github.com/target/policy-analysis-api/internal/migrate"
)

// RunMigrations applies the analysis schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
