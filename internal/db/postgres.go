package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a database connection pool from a Postgres connection URL
// (the DATABASE_URL convention — pgxpool.ParseConfig understands it natively,
// so there is no manual DSN assembly to get wrong).
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	// Pool tuning: a compile request can hold a connection while it gathers
	// project files, and webhook reconciliation runs many small statements,
	// so keep a few warm connections and recycle hourly.
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 20 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	logger.Info("DB connection established",
		zap.String("dsn", poolConfig.ConnString()),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return &DB{
		pool:   pool,
		logger: logger,
	}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.pool.Close()
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Migrate creates the schema. Idempotent; safe to run at every startup.
//
// Uniqueness is enforced here, not in application code:
//   - sibling names use UNIQUE NULLS NOT DISTINCT so the project root
//     (parent_id IS NULL) is constrained like any other parent
//   - "at most one main file per project" is a partial unique index
//
// The stores translate violations of these named constraints into domain
// errors, so concurrent creations race at the index and exactly one wins.
func (db *DB) Migrate(ctx context.Context) error {
	schema := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS users (
			id uuid PRIMARY KEY,
			email text NOT NULL UNIQUE,
			display_name text NOT NULL,
			password_hash text NOT NULL,
			verified boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS profiles (
			user_id uuid PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			bio text NOT NULL DEFAULT '',
			created_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			description text NOT NULL DEFAULT '',
			owner_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			is_github_repo boolean NOT NULL DEFAULT false,
			github_repo text,
			github_branch text NOT NULL DEFAULT 'main',
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS folders (
			id uuid PRIMARY KEY,
			project_id uuid NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			parent_id uuid REFERENCES folders(id) ON DELETE CASCADE,
			name text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			CONSTRAINT folders_project_parent_name_key
				UNIQUE NULLS NOT DISTINCT (project_id, parent_id, name)
		)`,

		`CREATE INDEX IF NOT EXISTS folders_project_parent_idx
			ON folders (project_id, parent_id)`,

		`CREATE TABLE IF NOT EXISTS files (
			id uuid PRIMARY KEY,
			project_id uuid NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			folder_id uuid REFERENCES folders(id) ON DELETE CASCADE,
			name text NOT NULL,
			content text NOT NULL DEFAULT '',
			is_main boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			CONSTRAINT files_project_folder_name_key
				UNIQUE NULLS NOT DISTINCT (project_id, folder_id, name)
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS files_one_main_per_project
			ON files (project_id) WHERE is_main`,

		`CREATE TABLE IF NOT EXISTS notes (
			id uuid PRIMARY KEY,
			title text NOT NULL,
			slug text NOT NULL,
			content text NOT NULL DEFAULT '',
			rendered_html text NOT NULL DEFAULT '',
			file_id uuid REFERENCES files(id) ON DELETE CASCADE,
			folder_id uuid REFERENCES folders(id) ON DELETE CASCADE,
			project_id uuid REFERENCES projects(id) ON DELETE CASCADE,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			CONSTRAINT notes_slug_key UNIQUE (slug),
			CONSTRAINT notes_one_parent_check CHECK (
				(file_id IS NOT NULL)::int +
				(folder_id IS NOT NULL)::int +
				(project_id IS NOT NULL)::int = 1
			)
		)`,

		`CREATE TABLE IF NOT EXISTS note_tags (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			slug text NOT NULL,
			CONSTRAINT note_tags_name_key UNIQUE (name),
			CONSTRAINT note_tags_slug_key UNIQUE (slug)
		)`,

		`CREATE TABLE IF NOT EXISTS note_taggings (
			note_id uuid NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			tag_id uuid NOT NULL REFERENCES note_tags(id) ON DELETE CASCADE,
			CONSTRAINT note_taggings_note_tag_key UNIQUE (note_id, tag_id)
		)`,

		`CREATE TABLE IF NOT EXISTS file_events (
			id uuid PRIMARY KEY,
			project_id uuid NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			file_path text NOT NULL,
			file_name text NOT NULL,
			event_type text NOT NULL CHECK (event_type IN ('created', 'modified', 'deleted')),
			processed boolean NOT NULL DEFAULT false,
			timestamp timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS file_events_pending_idx
			ON file_events (project_id, timestamp) WHERE NOT processed`,
	}

	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	db.logger.Info("schema migration complete")
	return nil
}
