package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/field-notes/apiserver/internal/storage"
	"github.com/field-notes/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryRepo() *NoteRepository {
	return NewNoteRepository(storage.NewStorage(storage.NewMemoryBackend(), time.Second))
}

func sampleNote(id string) types.Note {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return types.Note{
		ID:        id,
		Title:     "Leak at Site " + id,
		Tags:      []string{"urgent"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNoteRepository_ListBootstrapsEmptyCollection(t *testing.T) {
	repo := newMemoryRepo()

	notes, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)

	notes, err = repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notes, "bootstrap must be idempotent")
}

func TestNoteRepository_ReplaceAllAndGet(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, []types.Note{sampleNote("b"), sampleNote("a")}))

	notes, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "b", notes[0].ID)
	assert.Equal(t, "a", notes[1].ID)

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, sampleNote("a"), got)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNoteRepository_ReplaceIfRevisionRejectsStaleWrite(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	_, rev, err := repo.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.ReplaceIfRevision(ctx, []types.Note{sampleNote("first")}, rev))

	err = repo.ReplaceIfRevision(ctx, []types.Note{sampleNote("second")}, rev)
	assert.ErrorIs(t, err, ErrConflict)

	notes, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "first", notes[0].ID)
}

func TestNoteRepository_ReplaceIfRevisionRequiresRevision(t *testing.T) {
	err := newMemoryRepo().ReplaceIfRevision(context.Background(), nil, storage.AnyRevision)
	assert.Error(t, err)
}

func TestNoteRepository_FileLayoutIsPrettyPrintedArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "notes.json")
	backend, err := storage.NewFileBackend(path)
	require.NoError(t, err)
	repo := NewNoteRepository(storage.NewStorage(backend, time.Second))
	ctx := context.Background()

	_, err = repo.List(ctx)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))

	note := sampleNote("a")
	note.Tags = nil
	require.NoError(t, repo.ReplaceAll(ctx, []types.Note{note}))

	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n  {\n    \"id\": \"a\""), string(raw))
	assert.Contains(t, string(raw), `"tags": []`)
	assert.Contains(t, string(raw), `"sentToChat": false`)
}

func TestNoteRepository_CorruptDocumentIsAnError(t *testing.T) {
	backend := storage.NewMemoryBackend()
	_, err := backend.Write(context.Background(), []byte(`{not json`), storage.AnyRevision)
	require.NoError(t, err)

	repo := NewNoteRepository(storage.NewStorage(backend, time.Second))
	_, err = repo.List(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
