package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5"

	"reflection-token-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order in
// one transaction. Every file uses IF NOT EXISTS, so this runs on each
// start.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool.Pool, func(tx pgx.Tx) error {
		for _, file := range files {
			data, err := fs.ReadFile(PostgresFS, "postgres/"+file)
			if err != nil {
				return fmt.Errorf("read migration %s: %w", file, err)
			}
			if strings.TrimSpace(string(data)) == "" {
				continue
			}
			// simple protocol: several statements per Exec
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		return nil
	})
}
