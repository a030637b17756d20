package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID keys the advisory lock that serialises concurrent
// migrators started by several replicas.
const migrationLockID int64 = 0x6c65617665

var migrationName = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.sql$`)

var ErrMigrationChanged = errors.New("applied migration was modified")

type migration struct {
	seq      int
	version  string
	sql      string
	checksum string
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate brings the schema up to date with the NNNN_name.sql files in dir.
// Each file runs in its own transaction under an advisory lock. A file whose
// content differs from the checksum recorded when it was applied stops the
// run with ErrMigrationChanged.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	pending, err := loadMigrations(dir)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, migrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range pending {
		ran := false
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			var err error
			ran, err = applyMigration(ctx, tx, m)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.version, err)
		}
		if ran {
			applied++
			slog.Info("migration applied", "version", m.version)
		}
	}
	slog.Info("schema up to date", "applied", applied, "known", len(pending))
	return nil
}

func applyMigration(ctx context.Context, tx pgx.Tx, m migration) (bool, error) {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return false, err
	}

	var recorded string
	err := tx.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", m.version).Scan(&recorded)
	switch {
	case err == nil:
		if recorded != "" && recorded != m.checksum {
			return false, ErrMigrationChanged
		}
		return false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, err
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)", m.version, m.checksum); err != nil {
		return false, err
	}
	return true, nil
}

// loadMigrations reads the migration files in dir ordered by their numeric
// prefix. Files not named like a migration are ignored; two files sharing a
// prefix are an error.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		match := migrationName.FindStringSubmatch(name)
		if entry.IsDir() || match == nil {
			continue
		}
		seq, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(body)
		out = append(out, migration{
			seq:      seq,
			version:  name[:len(name)-len(".sql")],
			sql:      string(body),
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(out, func(a, b migration) int { return a.seq - b.seq })
	for i := 1; i < len(out); i++ {
		if out[i].seq == out[i-1].seq {
			return nil, fmt.Errorf("migrations %s and %s share sequence %d", out[i-1].version, out[i].version, out[i].seq)
		}
	}
	return out, nil
}
