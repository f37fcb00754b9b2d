package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			mid INTEGER PRIMARY KEY,
			tel TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_in INTEGER NOT NULL DEFAULT 0,
			saved_at INTEGER NOT NULL DEFAULT 0,
			cookies_json TEXT NOT NULL DEFAULT '{}',
			raw_token_info TEXT NOT NULL DEFAULT '',
			raw_cookie_info TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_tel ON accounts(tel);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
