package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/field-notes/apiserver/internal/storage"
	"github.com/field-notes/apiserver/internal/store"
	"github.com/field-notes/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNoteService(t *testing.T, noteTakers ...string) *NoteService {
	t.Helper()
	repo := store.NewNoteRepository(storage.NewStorage(storage.NewMemoryBackend(), time.Second))
	return NewNoteService(repo, noteTakers)
}

// frozenClock returns a clock that only moves when told to.
func frozenClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}

func TestCreateNote_Validation(t *testing.T) {
	tests := []struct {
		name      string
		input     types.NoteInput
		wantField string
	}{
		{name: "title only", input: types.NoteInput{Title: "a"}},
		{name: "content only", input: types.NoteInput{Content: "a"}},
		{name: "both empty", input: types.NoteInput{}, wantField: "title"},
		{name: "whitespace only", input: types.NoteInput{Title: "  ", Content: "\n\t"}, wantField: "title"},
		{name: "title too long", input: types.NoteInput{Title: strings.Repeat("x", 201)}, wantField: "title"},
		{name: "title at limit", input: types.NoteInput{Title: strings.Repeat("é", 200)}},
		{name: "known note taker", input: types.NoteInput{Title: "a", NoteTaker: "Victor"}},
		{name: "unknown note taker", input: types.NoteInput{Title: "a", NoteTaker: "Mallory"}, wantField: "noteTaker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestNoteService(t, "Victor", "Scott")

			note, err := svc.CreateNote(context.Background(), tt.input)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, note.ID)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.wantField)
		})
	}
}

func TestCreateNote_SetsServerFields(t *testing.T) {
	svc := newTestNoteService(t)

	note, err := svc.CreateNote(context.Background(), types.NoteInput{
		Title:   "Leak at Site A",
		Content: "Observed pooling water",
		Tags:    []string{"urgent"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, note.ID)
	assert.False(t, note.SentToChat)
	assert.Equal(t, []string{"urgent"}, note.Tags)
	assert.Equal(t, note.CreatedAt, note.UpdatedAt)
	assert.False(t, note.CreatedAt.IsZero())
}

func TestCreateNote_NilTagsBecomeEmpty(t *testing.T) {
	svc := newTestNoteService(t)

	note, err := svc.CreateNote(context.Background(), types.NoteInput{Title: "a"})
	require.NoError(t, err)
	assert.NotNil(t, note.Tags)
	assert.Empty(t, note.Tags)
}

func TestCreateNote_RoundTrip(t *testing.T) {
	svc := newTestNoteService(t)
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, types.NoteInput{
		Title:    "Leak",
		Content:  "Water",
		Location: "51.5,-0.12",
		Tags:     []string{"b", "a", "b"},
	})
	require.NoError(t, err)

	got, err := svc.GetNote(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, []string{"b", "a", "b"}, got.Tags, "order and duplicates preserved")
}

func TestCreateNote_IDsAreUnique(t *testing.T) {
	svc := newTestNoteService(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		n, err := svc.CreateNote(ctx, types.NoteInput{Title: fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
		require.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
}

func TestListNotes_MostRecentFirst(t *testing.T) {
	svc := newTestNoteService(t)
	ctx := context.Background()

	n1, err := svc.CreateNote(ctx, types.NoteInput{Title: "first"})
	require.NoError(t, err)
	n2, err := svc.CreateNote(ctx, types.NoteInput{Title: "second"})
	require.NoError(t, err)

	notes, err := svc.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, n2.ID, notes[0].ID)
	assert.Equal(t, n1.ID, notes[1].ID)
}

func TestGetNote_NotFound(t *testing.T) {
	_, err := newTestNoteService(t).GetNote(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateNote_MergesPresentFieldsOnly(t *testing.T) {
	svc := newTestNoteService(t)
	now, tick := frozenClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	svc.now = now
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, types.NoteInput{
		Title:    "Leak",
		Content:  "Water",
		Location: "Site A",
		Tags:     []string{"urgent"},
	})
	require.NoError(t, err)

	tick(time.Minute)
	updated, err := svc.UpdateNote(ctx, created.ID, types.NoteUpdate{Tags: types.Some([]string{"x"})})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Leak", updated.Title)
	assert.Equal(t, "Water", updated.Content)
	assert.Equal(t, "Site A", updated.Location)
	assert.Equal(t, []string{"x"}, updated.Tags)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdateNote_PresentEmptyValueClearsField(t *testing.T) {
	svc := newTestNoteService(t)
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, types.NoteInput{Title: "Leak", Location: "Site A", Tags: []string{"a"}})
	require.NoError(t, err)

	updated, err := svc.UpdateNote(ctx, created.ID, types.NoteUpdate{
		Location: types.Some(""),
		Tags:     types.Some([]string{}),
	})
	require.NoError(t, err)
	assert.Empty(t, updated.Location)
	assert.NotNil(t, updated.Tags)
	assert.Empty(t, updated.Tags)
	assert.Equal(t, "Leak", updated.Title)
}

func TestUpdateNote_UpdatedAtAdvancesWhenClockStalls(t *testing.T) {
	svc := newTestNoteService(t)
	now, _ := frozenClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	svc.now = now
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, types.NoteInput{Title: "Leak"})
	require.NoError(t, err)

	first, err := svc.UpdateNote(ctx, created.ID, types.NoteUpdate{})
	require.NoError(t, err)
	second, err := svc.UpdateNote(ctx, created.ID, types.NoteUpdate{})
	require.NoError(t, err)

	assert.True(t, first.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.False(t, second.UpdatedAt.Before(second.CreatedAt))
}

func TestUpdateNote_Validation(t *testing.T) {
	tests := []struct {
		name      string
		update    types.NoteUpdate
		wantField string
	}{
		{name: "empty title", update: types.NoteUpdate{Title: types.Some("")}, wantField: "title"},
		{name: "long title", update: types.NoteUpdate{Title: types.Some(strings.Repeat("x", 201))}, wantField: "title"},
		{name: "blank content", update: types.NoteUpdate{Content: types.Some("  ")}, wantField: "content"},
		{name: "unknown note taker", update: types.NoteUpdate{NoteTaker: types.Some("Mallory")}, wantField: "noteTaker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestNoteService(t, "Victor")
			ctx := context.Background()
			created, err := svc.CreateNote(ctx, types.NoteInput{Title: "Leak"})
			require.NoError(t, err)

			_, err = svc.UpdateNote(ctx, created.ID, tt.update)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.wantField)

			got, err := svc.GetNote(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, created, got, "failed update must not persist")
		})
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, err := newTestNoteService(t).UpdateNote(context.Background(), "nope", types.NoteUpdate{Title: types.Some("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkSentToChat(t *testing.T) {
	svc := newTestNoteService(t)
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, types.NoteInput{Title: "Leak", Content: "Water", Tags: []string{"urgent"}})
	require.NoError(t, err)

	marked, err := svc.MarkSentToChat(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, marked.SentToChat)
	assert.Equal(t, created.Title, marked.Title)
	assert.Equal(t, created.Content, marked.Content)
	assert.Equal(t, created.Tags, marked.Tags)

	_, err = svc.MarkSentToChat(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNote(t *testing.T) {
	svc := newTestNoteService(t)
	ctx := context.Background()

	keep, err := svc.CreateNote(ctx, types.NoteInput{Title: "keep"})
	require.NoError(t, err)
	drop, err := svc.CreateNote(ctx, types.NoteInput{Title: "drop"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNote(ctx, drop.ID))
	assert.ErrorIs(t, svc.DeleteNote(ctx, drop.ID), ErrNotFound, "second delete must fail")
	assert.ErrorIs(t, svc.DeleteNote(ctx, "never-existed"), ErrNotFound)

	notes, err := svc.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, keep.ID, notes[0].ID)
}

func TestConcurrentCreates_NoLostUpdates(t *testing.T) {
	svc := newTestNoteService(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateNote(ctx, types.NoteInput{Title: fmt.Sprintf("note %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	notes, err := svc.ListNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, n)
}

// racingRepo simulates another process writing between our read and write.
type racingRepo struct {
	NoteRepository
}

func (r racingRepo) ReplaceIfRevision(ctx context.Context, notes []types.Note, rev string) error {
	return store.ErrConflict
}

func TestMutation_ConflictIsReported(t *testing.T) {
	inner := store.NewNoteRepository(storage.NewStorage(storage.NewMemoryBackend(), time.Second))
	svc := NewNoteService(racingRepo{inner}, nil)

	_, err := svc.CreateNote(context.Background(), types.NoteInput{Title: "a"})
	assert.ErrorIs(t, err, ErrConflict)
}

// brokenRepo fails every storage call.
type brokenRepo struct{}

var errDisk = errors.New("disk on fire")

func (brokenRepo) List(ctx context.Context) ([]types.Note, error) { return nil, errDisk }

func (brokenRepo) Get(ctx context.Context, id string) (types.Note, error) {
	return types.Note{}, errDisk
}

func (brokenRepo) Snapshot(ctx context.Context) ([]types.Note, string, error) {
	return nil, "", errDisk
}

func (brokenRepo) ReplaceIfRevision(ctx context.Context, notes []types.Note, rev string) error {
	return errDisk
}

func TestStorageErrorsPropagate(t *testing.T) {
	svc := NewNoteService(brokenRepo{}, nil)
	ctx := context.Background()

	_, err := svc.ListNotes(ctx)
	assert.ErrorIs(t, err, errDisk)
	_, err = svc.GetNote(ctx, "x")
	assert.ErrorIs(t, err, errDisk)
	_, err = svc.CreateNote(ctx, types.NoteInput{Title: "a"})
	assert.ErrorIs(t, err, errDisk)
	_, err = svc.UpdateNote(ctx, "x", types.NoteUpdate{})
	assert.ErrorIs(t, err, errDisk)
	assert.ErrorIs(t, svc.DeleteNote(ctx, "x"), errDisk)
}

func TestNoteTakers_Sorted(t *testing.T) {
	svc := newTestNoteService(t, "Victor", "Alice", "Scott")
	assert.Equal(t, []string{"Alice", "Scott", "Victor"}, svc.NoteTakers())
}

// conflictingRepo loses the revision check for the first n writes.
type conflictingRepo struct {
	NoteRepository
	mu     sync.Mutex
	n      int
	writes int
}

func (r *conflictingRepo) ReplaceIfRevision(ctx context.Context, notes []types.Note, rev string) error {
	r.mu.Lock()
	r.writes++
	lose := r.writes <= r.n
	r.mu.Unlock()
	if lose {
		return store.ErrConflict
	}
	return r.NoteRepository.ReplaceIfRevision(ctx, notes, rev)
}

func TestMarkSentToChat_RetriesLostRevisionRace(t *testing.T) {
	inner := store.NewNoteRepository(storage.NewStorage(storage.NewMemoryBackend(), time.Second))
	seed := NewNoteService(inner, nil)
	ctx := context.Background()
	created, err := seed.CreateNote(ctx, types.NoteInput{Title: "Leak"})
	require.NoError(t, err)

	repo := &conflictingRepo{NoteRepository: inner, n: 2}
	svc := NewNoteService(repo, nil)

	marked, err := svc.MarkSentToChat(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, marked.SentToChat)
	assert.Equal(t, 3, repo.writes)

	stored, err := seed.GetNote(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.SentToChat)
}

func TestMarkSentToChat_GivesUpAfterRepeatedConflicts(t *testing.T) {
	inner := store.NewNoteRepository(storage.NewStorage(storage.NewMemoryBackend(), time.Second))
	seed := NewNoteService(inner, nil)
	ctx := context.Background()
	created, err := seed.CreateNote(ctx, types.NoteInput{Title: "Leak"})
	require.NoError(t, err)

	repo := &conflictingRepo{NoteRepository: inner, n: 100}
	_, err = NewNoteService(repo, nil).MarkSentToChat(ctx, created.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, markSentAttempts, repo.writes)
}

func TestUpdateNote_ConflictIsNotRetried(t *testing.T) {
	inner := store.NewNoteRepository(storage.NewStorage(storage.NewMemoryBackend(), time.Second))
	seed := NewNoteService(inner, nil)
	ctx := context.Background()
	created, err := seed.CreateNote(ctx, types.NoteInput{Title: "Leak"})
	require.NoError(t, err)

	repo := &conflictingRepo{NoteRepository: inner, n: 1}
	_, err = NewNoteService(repo, nil).UpdateNote(ctx, created.ID, types.NoteUpdate{Title: types.Some("x")})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, repo.writes)
}
