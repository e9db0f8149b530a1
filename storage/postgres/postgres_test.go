package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/suilink/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SUILINK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SUILINK_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, pool))
	pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck
		pool.Close()
	})
	return NewRepository(pool)
}

func TestPostgresStorage(t *testing.T) {
	s := newTestStore(t)
	env := &storage.Envelope{Ver: 1, Scheme: storage.SchemePlain, Payload: []byte(`{"network":"testnet"}`)}

	require.NoError(t, s.Put(storage.RegionLocal, "CONFIG", "user", env))
	got, err := s.Get(storage.RegionLocal, "CONFIG", "user")
	require.NoError(t, err)
	assert.Equal(t, env.Payload, got.Payload)

	_, err = s.Get(storage.RegionSync, "CONFIG", "user")
	assert.ErrorIs(t, err, storage.ErrRegionNotFound)
	_, err = s.Get(storage.RegionLocal, "CONFIG", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ids, err := s.List(storage.RegionLocal, "CONFIG")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, ids)

	require.NoError(t, s.Delete(storage.RegionLocal, "CONFIG", "user"))
	assert.Error(t, s.Delete(storage.RegionLocal, "CONFIG", "user"))
}
