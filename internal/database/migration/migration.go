package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                UUID        PRIMARY KEY,
  employee_id       TEXT,
  location_id       TEXT,
  document_type     TEXT        NOT NULL CHECK (document_type IN (
                      'license', 'medical_license', 'certification', 'tax_form', 'contract',
                      'background_check', 'insurance', 'training', 'identification', 'other')),
  file_name         TEXT        NOT NULL,
  storage_type      TEXT        NOT NULL CHECK (storage_type IN ('remote', 'local')),
  storage_key       TEXT        NOT NULL,
  file_size         BIGINT      NOT NULL CHECK (file_size > 0),
  mime_type         TEXT        NOT NULL,
  uploaded_date     TIMESTAMPTZ NOT NULL,
  signed_date       DATE,
  expiration_date   DATE,
  is_verified       BOOLEAN     NOT NULL DEFAULT false,
  verified_by       TEXT,
  verification_date TIMESTAMPTZ,
  notes             TEXT,
  etag              TEXT,
  version_id        TEXT,
  status            TEXT        NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'deleting', 'undeletable')),
  status_reason     TEXT,
  status_changed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT documents_single_owner CHECK ((employee_id IS NULL) <> (location_id IS NULL)),
  CONSTRAINT documents_storage_location UNIQUE (storage_type, storage_key)
);`,
	},
	{
		Name: "create_index_documents_employee_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_employee_id ON documents (employee_id, created_at DESC) WHERE employee_id IS NOT NULL;`,
	},
	{
		Name: "create_index_documents_location_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_location_id ON documents (location_id, created_at DESC) WHERE location_id IS NOT NULL;`,
	},
	{
		Name: "create_index_documents_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status, status_changed_at) WHERE status <> 'active';`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at);`,
	},
}

// EnsureMigrated checks if the 'documents' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log zerolog.Logger, dbHost string) error {
	start := time.Now()
	log = log.With().Str("component", "database").Str("db_host", dbHost).Logger()

	log.Info().Str("event", "db_migration_check").Str("status", "starting").Send()

	var exists bool
	query := "SELECT to_regclass('public.documents') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		log.Error().
			Str("event", "db_migration_failed").
			Str("status", "error").
			Err(fmt.Errorf("failed to check sentinel table: %w", err)).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Send()
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info().
			Str("event", "db_migration_skip").
			Str("status", "success").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("schema already exists, skipping migration")
		return nil
	}

	log.Info().Str("event", "db_migration_start").Str("status", "in_progress").Send()

	for _, step := range steps {
		stepStart := time.Now()
		_, err := db.ExecContext(ctx, step.SQL)
		if err != nil {
			log.Error().
				Str("event", "db_migration_failed").
				Str("status", "error").
				Str("migration_step", step.Name).
				Err(err).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
				Send()
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info().
			Str("event", "db_migration_step").
			Str("status", "success").
			Str("migration_step", step.Name).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Send()
	}

	log.Info().
		Str("event", "db_migration_success").
		Str("status", "success").
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Send()

	return nil
}
