package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Step is one named, ordered, idempotent structural change. A step with a
// given name runs at most once, ever; the ledger table records executions.
// Each step's SQL is itself written to be idempotent (guarded creates,
// conditional column adds) so a redundant run is harmless.
type Step struct {
	Name string
	SQL  string
}

const migrationMaxTries = 5

// ApplyMigrations runs every not-yet-applied step in order, each in its own
// transaction, recording it in the ledger within the same transaction.
// Failures are retried with exponential backoff up to a fixed attempt count;
// exhaustion aborts startup. It is safe to call on every process start.
func ApplyMigrations(ctx context.Context, db *sql.DB, steps []Step) error {
	if err := ensureLedger(ctx, db); err != nil {
		return err
	}

	for _, step := range steps {
		if applied, err := isApplied(ctx, db, step.Name); err != nil {
			return err
		} else if applied {
			continue
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 200 * time.Millisecond
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, applyStep(ctx, db, step)
		}, backoff.WithBackOff(policy), backoff.WithMaxTries(migrationMaxTries))
		if err != nil {
			return fmt.Errorf("migration %s failed after %d attempts: %w", step.Name, migrationMaxTries, err)
		}
	}

	return nil
}

func applyStep(ctx context.Context, db *sql.DB, step Step) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", step.Name, err)
	}

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", step.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(name) VALUES($1)`, step.Name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", step.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", step.Name, err)
	}
	return nil
}

func ensureLedger(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return exists, nil
}

// Steps returns the full ordered migration list.
func Steps() []Step {
	return []Step{
		{
			Name: "001_create_users",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					email TEXT UNIQUE NOT NULL,
					password_hash TEXT NOT NULL DEFAULT '',
					is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					verification_token TEXT,
					verification_expires_at TIMESTAMPTZ,
					deactivated_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)
			`,
		},
		{
			Name: "002_create_session_tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS refresh_sessions (
					token_hash TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					expires_at TIMESTAMPTZ NOT NULL,
					revoked_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE TABLE IF NOT EXISTS revoked_access_tokens (
					jti TEXT PRIMARY KEY,
					expires_at TIMESTAMPTZ NOT NULL
				);
				CREATE TABLE IF NOT EXISTS password_resets (
					token TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					expires_at TIMESTAMPTZ NOT NULL,
					used_at TIMESTAMPTZ
				)
			`,
		},
		{
			Name: "003_create_tenants",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					slug TEXT UNIQUE NOT NULL,
					invite_code TEXT UNIQUE NOT NULL,
					is_public BOOLEAN NOT NULL DEFAULT FALSE,
					access_password_hash TEXT NOT NULL DEFAULT '',
					owner_user_id TEXT NOT NULL REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)
			`,
		},
		{
			Name: "004_create_tenant_memberships",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_memberships (
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					user_id TEXT NOT NULL REFERENCES users(id),
					role TEXT NOT NULL DEFAULT 'participant',
					can_upload BOOLEAN NOT NULL DEFAULT TRUE,
					can_edit_others BOOLEAN NOT NULL DEFAULT FALSE,
					can_manage BOOLEAN NOT NULL DEFAULT FALSE,
					display_name TEXT NOT NULL DEFAULT '',
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					last_active_at TIMESTAMPTZ,
					PRIMARY KEY (tenant_id, user_id)
				)
			`,
		},
		{
			Name: "005_create_tenant_invites",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_invites (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					email TEXT NOT NULL,
					token TEXT UNIQUE NOT NULL,
					role TEXT NOT NULL DEFAULT 'participant',
					can_upload BOOLEAN NOT NULL DEFAULT TRUE,
					can_edit_others BOOLEAN NOT NULL DEFAULT FALSE,
					can_manage BOOLEAN NOT NULL DEFAULT FALSE,
					status TEXT NOT NULL DEFAULT 'pending',
					expires_at TIMESTAMPTZ NOT NULL,
					invited_by TEXT NOT NULL,
					accepted_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)
			`,
		},
		{
			Name: "006_create_memory_collections",
			SQL: `
				CREATE TABLE IF NOT EXISTS memory_collections (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					memory_date TIMESTAMPTZ,
					created_by TEXT NOT NULL,
					is_locked BOOLEAN NOT NULL DEFAULT FALSE,
					lock_visibility TEXT NOT NULL DEFAULT 'private',
					unlock_type TEXT NOT NULL DEFAULT 'scheduled',
					unlock_at TIMESTAMPTZ,
					unlock_hint TEXT NOT NULL DEFAULT '',
					task_description TEXT NOT NULL DEFAULT '',
					task_completed BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)
			`,
		},
		{
			Name: "007_create_media_items",
			SQL: `
				CREATE TABLE IF NOT EXISTS media_items (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					collection_id TEXT REFERENCES memory_collections(id),
					storage_key TEXT NOT NULL,
					content_type TEXT NOT NULL,
					size_bytes BIGINT NOT NULL DEFAULT 0,
					width INTEGER,
					height INTEGER,
					duration_secs DOUBLE PRECISION,
					caption TEXT NOT NULL DEFAULT '',
					taken_at TIMESTAMPTZ,
					latitude DOUBLE PRECISION,
					longitude DOUBLE PRECISION,
					sort_order INTEGER NOT NULL DEFAULT 0,
					created_by TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)
			`,
		},
		{
			Name: "008_add_collection_disclosure_flags",
			SQL: `
				ALTER TABLE memory_collections ADD COLUMN IF NOT EXISTS show_title BOOLEAN NOT NULL DEFAULT FALSE;
				ALTER TABLE memory_collections ADD COLUMN IF NOT EXISTS show_description BOOLEAN NOT NULL DEFAULT FALSE;
				ALTER TABLE memory_collections ADD COLUMN IF NOT EXISTS show_item_count BOOLEAN NOT NULL DEFAULT FALSE;
				ALTER TABLE memory_collections ADD COLUMN IF NOT EXISTS show_created_date BOOLEAN NOT NULL DEFAULT FALSE;
				ALTER TABLE memory_collections ADD COLUMN IF NOT EXISTS show_blurred_preview BOOLEAN NOT NULL DEFAULT FALSE;
				ALTER TABLE memory_collections ADD COLUMN IF NOT EXISTS blur_strength INTEGER NOT NULL DEFAULT 50
			`,
		},
		{
			Name: "009_create_indexes",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_memberships_user ON tenant_memberships(user_id);
				CREATE INDEX IF NOT EXISTS idx_invites_tenant ON tenant_invites(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_collections_tenant ON memory_collections(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_media_tenant_collection ON media_items(tenant_id, collection_id);
				CREATE INDEX IF NOT EXISTS idx_media_sort ON media_items(collection_id, sort_order)
			`,
		},
	}
}
