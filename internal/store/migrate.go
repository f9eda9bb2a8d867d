package store

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nregatrack/nrega-sync/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	// migrationSchema holds the MGNREGA tables and the migration ledger.
	migrationSchema = "mgnrega"
	// migrationLockID keys the advisory lock held while migrating.
	migrationLockID = 7302024
)

// migration is one embedded SQL file.
type migration struct {
	name string
	sql  string
}

// MigratePostgres applies the embedded migrations that are not yet recorded
// in mgnrega.schema_migrations. Each file and its ledger row commit in one
// transaction, so a failed file leaves no partial record behind.
func MigratePostgres(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "store.migrate"), zap.String("schema", migrationSchema))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "store: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("store: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if err := ensureMigrationTable(ctx, pool); err != nil {
		return err
	}

	all, err := embeddedMigrations()
	if err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	var pending []migration
	for _, m := range all {
		if !applied[m.name] {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		log.Info("schema up to date", zap.Int("migrations", len(all)))
		return nil
	}

	for _, m := range pending {
		start := time.Now()
		if err := applyMigration(ctx, pool, m); err != nil {
			return err
		}
		log.Info("migration applied", zap.String("file", m.name), zap.Duration("elapsed", time.Since(start)))
	}
	log.Info("schema migrated",
		zap.Int("applied", len(pending)),
		zap.Int("previously_applied", len(all)-len(pending)),
	)
	return nil
}

func applyMigration(ctx context.Context, pool db.Pool, m migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "store: begin migration %s", m.name)
	}
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			zap.L().Warn("store: migration rollback failed", zap.String("file", m.name), zap.Error(rbErr))
		}
		return cause
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return rollback(eris.Wrapf(err, "store: apply migration %s", m.name))
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO "+migrationSchema+".schema_migrations (filename, applied_at) VALUES ($1, now())",
		m.name,
	); err != nil {
		return rollback(eris.Wrapf(err, "store: record migration %s", m.name))
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "store: commit migration %s", m.name)
	}
	return nil
}

// embeddedMigrations returns the SQL files ordered by name.
func embeddedMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "store: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		data, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, eris.Wrapf(err, "store: read migration %s", e.Name())
		}
		out = append(out, migration{name: e.Name(), sql: string(data)})
	}
	return out, nil
}

func ensureMigrationTable(ctx context.Context, pool db.Pool) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS ` + migrationSchema + `;
		CREATE TABLE IF NOT EXISTS ` + migrationSchema + `.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "store: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM "+migrationSchema+".schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "store: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "store: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
