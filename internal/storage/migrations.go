package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_code TEXT UNIQUE NOT NULL,
					version INTEGER NOT NULL DEFAULT 1,
					patterns TEXT NOT NULL,
					exclude_patterns TEXT,
					min_text_length INTEGER NOT NULL DEFAULT 0,
					confidence_threshold REAL NOT NULL DEFAULT 0,
					category TEXT NOT NULL,
					severity TEXT NOT NULL,
					risk_score INTEGER NOT NULL DEFAULT 0,
					jurisdiction TEXT,
					cooldown_seconds INTEGER NOT NULL DEFAULT 0,
					max_alerts_per_session INTEGER NOT NULL DEFAULT 0,
					primary_action TEXT,
					secondary_action TEXT,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL,
					status TEXT NOT NULL,
					started_at DATETIME,
					total_segments INTEGER NOT NULL DEFAULT 0,
					total_words INTEGER NOT NULL DEFAULT 0,
					total_chars INTEGER NOT NULL DEFAULT 0,
					total_alerts INTEGER NOT NULL DEFAULT 0,
					risk_score INTEGER NOT NULL DEFAULT 0,
					max_severity TEXT NOT NULL DEFAULT '',
					duration_seconds REAL NOT NULL DEFAULT 0,
					batch_processed INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS segments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL,
					segment_index INTEGER NOT NULL,
					text TEXT NOT NULL,
					start_time REAL NOT NULL DEFAULT 0,
					end_time REAL NOT NULL DEFAULT 0,
					words TEXT,
					speaker_id TEXT,
					has_alert INTEGER NOT NULL DEFAULT 0,
					alert_ids TEXT,
					source TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_segments_session ON segments(session_id)`,

				`CREATE TABLE IF NOT EXISTS alerts (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					segment_id INTEGER,
					rule_code TEXT NOT NULL,
					category TEXT NOT NULL,
					severity TEXT NOT NULL,
					risk_score INTEGER NOT NULL DEFAULT 0,
					matched_text TEXT NOT NULL,
					matched_pattern TEXT NOT NULL,
					context_text TEXT,
					audio_start REAL NOT NULL DEFAULT 0,
					audio_end REAL NOT NULL DEFAULT 0,
					speaker_id TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'new',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_alerts_session ON alerts(session_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Indexes for session listing and alert review queries",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status, updated_at)`,
				`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status)`,
				`CREATE INDEX IF NOT EXISTS idx_rules_active ON rules(is_active)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_segments_session_index_source ON segments(session_id, segment_index, source)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Track rule trigger counts out-of-band",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE rules ADD COLUMN trigger_count INTEGER NOT NULL DEFAULT 0`)
			return err
		},
	},
}

// runMigrations applies any pending migrations in version order.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("failed to roll back migration", "version", migration.Version, "error", rbErr)
			}
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
			migration.Version, migration.Description); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("failed to roll back migration", "version", migration.Version, "error", rbErr)
			}
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration", "version", migration.Version, "description", migration.Description)
	}

	return nil
}

// SchemaVersion returns the currently applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
