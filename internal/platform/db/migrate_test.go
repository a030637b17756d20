package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func versions(ms []migration) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.version)
	}
	return out
}

func TestLoadMigrationsOrdersByNumber(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"10_snapshots.sql": "SELECT 10;",
		"0002_leave.sql":   "SELECT 2;",
		"0001_init.sql":    "SELECT 1;",
		"notes.txt":        "ignored",
		"draft.sql":        "ignored",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o700))

	got, err := loadMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init", "0002_leave", "10_snapshots"}, versions(got))
	assert.Equal(t, "SELECT 2;", got[1].sql)
}

func TestLoadMigrationsChecksumTracksContent(t *testing.T) {
	a, err := loadMigrations(writeFiles(t, map[string]string{"0001_init.sql": "SELECT 1;"}))
	require.NoError(t, err)
	b, err := loadMigrations(writeFiles(t, map[string]string{"0001_init.sql": "SELECT 2;"}))
	require.NoError(t, err)

	assert.Len(t, a[0].checksum, 64)
	assert.NotEqual(t, a[0].checksum, b[0].checksum)
}

func TestLoadMigrationsRejectsDuplicateSequence(t *testing.T) {
	_, err := loadMigrations(writeFiles(t, map[string]string{
		"0001_init.sql": "SELECT 1;",
		"001_other.sql": "SELECT 1;",
	}))
	assert.ErrorContains(t, err, "share sequence 1")
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	_, err := loadMigrations(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestRepositoryMigrationsLoad(t *testing.T) {
	got, err := loadMigrations(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0001_init", got[0].version)
}
