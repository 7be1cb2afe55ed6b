package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/field-notes/apiserver/internal/storage"
	"github.com/field-notes/apiserver/types"
)

// NoteRepository persists the note collection as one pretty-printed JSON
// array. The backend only supports whole-collection reads and writes, so
// Get is a linear scan over the collection (O(n) per call).
type NoteRepository struct {
	storage *storage.Storage
}

func NewNoteRepository(s *storage.Storage) *NoteRepository {
	return &NoteRepository{storage: s}
}

// List returns the whole collection in stored order.
func (r *NoteRepository) List(ctx context.Context) ([]types.Note, error) {
	notes, _, err := r.Snapshot(ctx)
	return notes, err
}

// Get returns the note with the given id.
func (r *NoteRepository) Get(ctx context.Context, id string) (types.Note, error) {
	notes, err := r.List(ctx)
	if err != nil {
		return types.Note{}, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, nil
		}
	}
	return types.Note{}, ErrNotFound
}

// ReplaceAll overwrites the collection unconditionally.
func (r *NoteRepository) ReplaceAll(ctx context.Context, notes []types.Note) error {
	return r.write(ctx, notes, storage.AnyRevision)
}

// Snapshot returns the collection together with its revision. An absent
// collection is initialized to an empty array first.
func (r *NoteRepository) Snapshot(ctx context.Context) ([]types.Note, string, error) {
	data, rev, err := r.storage.Read(ctx)
	if errors.Is(err, storage.ErrNotExist) {
		data, rev, err = r.bootstrap(ctx)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read notes from %s: %w", r.storage.Name(), err)
	}

	notes, err := decodeNotes(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode notes from %s: %w", r.storage.Name(), err)
	}
	return notes, rev, nil
}

// ReplaceIfRevision overwrites the collection only if it is still at rev.
// A stale revision yields ErrConflict.
func (r *NoteRepository) ReplaceIfRevision(ctx context.Context, notes []types.Note, rev string) error {
	if rev == storage.AnyRevision {
		return errors.New("replace notes: a concrete revision is required")
	}
	return r.write(ctx, notes, rev)
}

func (r *NoteRepository) bootstrap(ctx context.Context) ([]byte, string, error) {
	empty, err := encodeNotes(nil)
	if err != nil {
		return nil, "", err
	}
	rev, err := r.storage.Write(ctx, empty, storage.NoRevision)
	if errors.Is(err, storage.ErrRevisionMismatch) {
		// another writer created it first
		return r.storage.Read(ctx)
	}
	if err != nil {
		return nil, "", err
	}
	return empty, rev, nil
}

func (r *NoteRepository) write(ctx context.Context, notes []types.Note, rev string) error {
	data, err := encodeNotes(notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	if _, err := r.storage.Write(ctx, data, rev); err != nil {
		if errors.Is(err, storage.ErrRevisionMismatch) {
			return ErrConflict
		}
		return fmt.Errorf("write notes to %s: %w", r.storage.Name(), err)
	}
	return nil
}

func encodeNotes(notes []types.Note) ([]byte, error) {
	if notes == nil {
		notes = []types.Note{}
	}
	for i := range notes {
		if notes[i].Tags == nil {
			notes[i].Tags = []string{}
		}
	}
	return json.MarshalIndent(notes, "", "  ")
}

func decodeNotes(data []byte) ([]types.Note, error) {
	var notes []types.Note
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []types.Note{}
	}
	for i := range notes {
		if notes[i].Tags == nil {
			notes[i].Tags = []string{}
		}
	}
	return notes, nil
}
