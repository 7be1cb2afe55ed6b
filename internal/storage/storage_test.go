package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/field-notes/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendContract runs the conditional-write rules every backend must obey.
func backendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, _, err := b.Read(ctx)
	require.ErrorIs(t, err, ErrNotExist)

	rev1, err := b.Write(ctx, []byte(`[]`), NoRevision)
	require.NoError(t, err)
	require.NotEmpty(t, rev1)

	_, err = b.Write(ctx, []byte(`[1]`), NoRevision)
	assert.ErrorIs(t, err, ErrRevisionMismatch, "create-only write must fail once the document exists")

	data, rev, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
	assert.Equal(t, rev1, rev)

	rev2, err := b.Write(ctx, []byte(`[1]`), rev1)
	require.NoError(t, err)
	assert.NotEqual(t, rev1, rev2)

	_, err = b.Write(ctx, []byte(`[2]`), rev1)
	assert.ErrorIs(t, err, ErrRevisionMismatch, "stale revision must be rejected")

	_, err = b.Write(ctx, []byte(`[3]`), AnyRevision)
	require.NoError(t, err)

	data, _, err = b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[3]`, string(data))
}

func TestMemoryBackend_Contract(t *testing.T) {
	backendContract(t, NewMemoryBackend())
}

func TestFileBackend_Contract(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "data", "notes.json"))
	require.NoError(t, err)
	backendContract(t, b)
}

func TestFileBackend_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(filepath.Join(dir, "notes.json"))
	require.NoError(t, err)

	_, err = b.Write(context.Background(), []byte(`[]`), AnyRevision)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.json", entries[0].Name())
}

func TestFileBackend_RequiresPath(t *testing.T) {
	_, err := NewFileBackend("  ")
	assert.Error(t, err)
}

func TestFileBackend_CanceledContext(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "notes.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = b.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = b.Write(ctx, []byte(`[]`), AnyRevision)
	assert.ErrorIs(t, err, context.Canceled)
}

func setupTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	b, err := NewRedisBackend("redis://"+s.Addr(), "notes")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, s
}

func TestRedisBackend_Contract(t *testing.T) {
	b, _ := setupTestRedis(t)
	backendContract(t, b)
}

func TestRedisBackend_UsesConfiguredKey(t *testing.T) {
	b, s := setupTestRedis(t)

	_, err := b.Write(context.Background(), []byte(`["x"]`), AnyRevision)
	require.NoError(t, err)

	got, err := s.Get("notes")
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, got)
}

func TestRedisBackend_ExternalWriteInvalidatesRevision(t *testing.T) {
	b, s := setupTestRedis(t)
	ctx := context.Background()

	rev, err := b.Write(ctx, []byte(`[]`), NoRevision)
	require.NoError(t, err)

	require.NoError(t, s.Set("notes", `["other writer"]`))

	_, err = b.Write(ctx, []byte(`["mine"]`), rev)
	assert.ErrorIs(t, err, ErrRevisionMismatch)
}

func TestNewRedisBackend_BadURL(t *testing.T) {
	_, err := NewRedisBackend("://nope", "notes")
	assert.Error(t, err)
}

func TestStorage_AppliesTimeout(t *testing.T) {
	s := NewStorage(&slowBackend{delay: 200 * time.Millisecond}, 20*time.Millisecond)

	_, _, err := s.Read(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Backend: config.StoreMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	s, err = Open(ctx, config.StoreConfig{
		Backend:  config.StoreFile,
		DataFile: filepath.Join(t.TempDir(), "notes.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, "file", s.Name())

	_, err = Open(ctx, config.StoreConfig{Backend: "tape"})
	assert.Error(t, err)
}

type slowBackend struct {
	delay time.Duration
}

func (s *slowBackend) Read(ctx context.Context) ([]byte, string, error) {
	select {
	case <-time.After(s.delay):
		return []byte(`[]`), "1", nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

func (s *slowBackend) Write(ctx context.Context, data []byte, rev string) (string, error) {
	return "1", nil
}

func (s *slowBackend) Name() string { return "slow" }

func (s *slowBackend) Close() error { return nil }

func TestStorage_Ping(t *testing.T) {
	ctx := context.Background()

	mem := NewStorage(NewMemoryBackend(), time.Second)
	require.NoError(t, mem.Ping(ctx))

	b, s := setupTestRedis(t)
	rs := NewStorage(b, time.Second)
	require.NoError(t, rs.Ping(ctx))
	s.Close()
	assert.Error(t, rs.Ping(ctx))
}
