package store

import (
	"context"
	"database/sql"
	"fmt"
)

const latestVersion = 2

// migrate applies schema migrations up to latestVersion, tracking the
// current version in schema_migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	var cnt int
	_ = db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&cnt)
	if cnt == 0 {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES(0)`); err != nil {
			return err
		}
	}
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT version FROM schema_migrations`).Scan(&cur); err != nil {
		return err
	}
	for v := cur + 1; v <= latestVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate to v%d: %w", v, err)
			}
		}
		if _, err := db.ExecContext(ctx, `UPDATE schema_migrations SET version=?`, v); err != nil {
			return err
		}
	}
	return nil
}

var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS courses (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS materials (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL,
			title TEXT NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			keywords TEXT,
			metadata TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_materials_course ON materials(course_id)`,
		`CREATE TABLE IF NOT EXISTS material_embeddings (
			material_id TEXT NOT NULL,
			ord INTEGER NOT NULL,
			dim INTEGER NOT NULL,
			vector TEXT NOT NULL,
			PRIMARY KEY (material_id, ord)
		)`,
	},
	2: {
		`CREATE TABLE IF NOT EXISTS query_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT,
			course_id TEXT,
			query TEXT NOT NULL,
			answered INTEGER NOT NULL DEFAULT 0,
			cache_hit INTEGER NOT NULL DEFAULT 0,
			asked_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON query_history(user_id, asked_at)`,
	},
}
