package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseLedger checks the behaviour every backend must share.
func exerciseLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	known, err := l.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)

	require.NoError(t, l.Mark(ctx, "rec-1", "2024-05-11T12:34:56Z", "c9"))
	require.NoError(t, l.Mark(ctx, "rec-2", "2024-05-12T08:00:00Z", ""))

	// Second mark of the same id is a no-op.
	require.NoError(t, l.Mark(ctx, "rec-1", "2030-01-01T00:00:00Z", "other"))

	known, err = l.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"rec-1": {}, "rec-2": {}}, known)

	entry, err := l.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", entry.RecordID)
	assert.Equal(t, "2024-05-11T12:34:56Z", entry.ActionDate)
	assert.Equal(t, "c9", entry.ChecklistID)
	assert.False(t, entry.ImportedAt.IsZero())

	entry, err = l.Get(ctx, "rec-2")
	require.NoError(t, err)
	assert.Empty(t, entry.ChecklistID)

	_, err = l.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite(t *testing.T) {
	l, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	exerciseLedger(t, l)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "beep_sync.db")

	l, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.Mark(ctx, "rec-1", "2024-05-11T12:34:56Z", "c9"))
	require.NoError(t, l.Close())

	l, err = Open(ctx, "sqlite://"+path)
	require.NoError(t, err)
	defer l.Close()

	known, err := l.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, known, "rec-1")
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	l, err := Open(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer l.Close()

	exerciseLedger(t, l)
}

func TestRedisMarkRepairsIndex(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	l, err := OpenRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Mark(ctx, "rec-1", "2024-05-11T12:34:56Z", "c9"))
	_, err = mr.SRem(DefaultRedisPrefix, "rec-1")
	require.NoError(t, err)

	require.NoError(t, l.Mark(ctx, "rec-1", "2030-01-01T00:00:00Z", ""))

	known, err := l.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, known, "rec-1")

	entry, err := l.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-11T12:34:56Z", entry.ActionDate)
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("HIVESYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HIVESYNC_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	l, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.pool.Exec(ctx, `TRUNCATE imported_records`)
	require.NoError(t, err)

	exerciseLedger(t, l)
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "")
	assert.ErrorIs(t, err, ErrOpen)

	_, err = Open(ctx, "redis://127.0.0.1:1")
	assert.ErrorIs(t, err, ErrOpen)

	_, err = Open(ctx, "postgres://user@127.0.0.1:1/db?connect_timeout=1")
	assert.ErrorIs(t, err, ErrOpen)
}

func TestKind(t *testing.T) {
	assert.Equal(t, BackendPostgres, Kind("postgres://localhost/db"))
	assert.Equal(t, BackendPostgres, Kind("postgresql://localhost/db"))
	assert.Equal(t, BackendRedis, Kind("redis://localhost:6379/0"))
	assert.Equal(t, BackendRedis, Kind("rediss://localhost:6380"))
	assert.Equal(t, BackendSQLite, Kind("beep_sync.db"))
	assert.Equal(t, BackendSQLite, Kind("sqlite://data/beep_sync.db"))
}
