package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/field-notes/apiserver/internal/store"
	"github.com/field-notes/apiserver/types"
	"github.com/google/uuid"
)

// MaxTitleLength is the longest accepted title, in characters.
const MaxTitleLength = 200

// NoteRepository defines persistence operations for notes. Mutations read a
// snapshot and write the whole collection back at that revision.
type NoteRepository interface {
	List(ctx context.Context) ([]types.Note, error)
	Get(ctx context.Context, id string) (types.Note, error)
	Snapshot(ctx context.Context) ([]types.Note, string, error)
	ReplaceIfRevision(ctx context.Context, notes []types.Note, rev string) error
}

// NoteService owns the note lifecycle: validation, timestamps, merge rules
// and the sentToChat flag. It is the only writer of the note collection.
//
// Read-modify-write cycles are serialized by mu, and each write is
// conditional on the revision that was read, so a writer in another process
// causes ErrConflict rather than a lost update.
type NoteService struct {
	repo       NoteRepository
	noteTakers map[string]struct{}

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func NewNoteService(repo NoteRepository, noteTakers []string) *NoteService {
	allowed := make(map[string]struct{}, len(noteTakers))
	for _, name := range noteTakers {
		allowed[name] = struct{}{}
	}
	return &NoteService{
		repo:       repo,
		noteTakers: allowed,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// NoteTakers returns the allowed author names, sorted.
func (s *NoteService) NoteTakers() []string {
	out := make([]string, 0, len(s.noteTakers))
	for name := range s.noteTakers {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// ListNotes returns all notes, most recent first.
func (s *NoteService) ListNotes(ctx context.Context) ([]types.Note, error) {
	return s.repo.List(ctx)
}

func (s *NoteService) GetNote(ctx context.Context, id string) (types.Note, error) {
	note, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Note{}, ErrNotFound
	}
	return note, err
}

// CreateNote validates input and prepends a new note to the collection.
func (s *NoteService) CreateNote(ctx context.Context, input types.NoteInput) (types.Note, error) {
	if err := s.validateCreate(input); err != nil {
		return types.Note{}, err
	}

	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}

	var created types.Note
	err := s.mutate(ctx, func(notes []types.Note) ([]types.Note, error) {
		now := s.now().UTC()
		created = types.Note{
			ID:         s.newID(),
			Title:      input.Title,
			Content:    input.Content,
			Location:   input.Location,
			Tags:       append([]string(nil), tags...),
			NoteTaker:  input.NoteTaker,
			CreatedAt:  now,
			UpdatedAt:  now,
			SentToChat: false,
		}
		out := make([]types.Note, 0, len(notes)+1)
		out = append(out, created)
		return append(out, notes...), nil
	})
	if err != nil {
		return types.Note{}, err
	}
	return created, nil
}

// UpdateNote merges the present fields of update into the note with the
// given id. Absent fields are left alone; updatedAt always advances.
func (s *NoteService) UpdateNote(ctx context.Context, id string, update types.NoteUpdate) (types.Note, error) {
	if err := s.validateUpdate(update); err != nil {
		return types.Note{}, err
	}

	var updated types.Note
	err := s.mutate(ctx, func(notes []types.Note) ([]types.Note, error) {
		idx := indexOf(notes, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		note := notes[idx]
		applyUpdate(&note, update)
		note.UpdatedAt = s.advance(note.UpdatedAt)
		notes[idx] = note
		updated = note
		return notes, nil
	})
	if err != nil {
		return types.Note{}, err
	}
	return updated, nil
}

// DeleteNote removes the note with the given id.
func (s *NoteService) DeleteNote(ctx context.Context, id string) error {
	return s.mutate(ctx, func(notes []types.Note) ([]types.Note, error) {
		filtered := make([]types.Note, 0, len(notes))
		for _, n := range notes {
			if n.ID != id {
				filtered = append(filtered, n)
			}
		}
		if len(filtered) == len(notes) {
			return nil, ErrNotFound
		}
		return filtered, nil
	})
}

// markSentAttempts bounds the retries of MarkSentToChat when another writer
// keeps winning the revision check.
const markSentAttempts = 5

// MarkSentToChat flags a note as relayed. Only the relay calls it, after the
// webhook accepted the post, so a lost revision race is retried on fresh data
// rather than reported: the post cannot be taken back.
func (s *NoteService) MarkSentToChat(ctx context.Context, id string) (types.Note, error) {
	var (
		note types.Note
		err  error
	)
	for range markSentAttempts {
		note, err = s.UpdateNote(ctx, id, types.NoteUpdate{SentToChat: types.Some(true)})
		if !errors.Is(err, ErrConflict) {
			return note, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.Note{}, ctxErr
		}
	}
	return types.Note{}, err
}

func (s *NoteService) mutate(ctx context.Context, fn func([]types.Note) ([]types.Note, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, rev, err := s.repo.Snapshot(ctx)
	if err != nil {
		return err
	}
	next, err := fn(notes)
	if err != nil {
		return err
	}
	if err := s.repo.ReplaceIfRevision(ctx, next, rev); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// advance returns the current time, or a microsecond past prev when the
// clock has not moved beyond it.
func (s *NoteService) advance(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (s *NoteService) validateCreate(input types.NoteInput) error {
	verr := &ValidationError{}
	if strings.TrimSpace(input.Title) == "" && strings.TrimSpace(input.Content) == "" {
		verr.add("title", "At least a title or notes content is required.")
	}
	if utf8.RuneCountInString(input.Title) > MaxTitleLength {
		verr.add("title", "Title must be at most 200 characters.")
	}
	s.validateNoteTaker(verr, input.NoteTaker)
	return verr.orNil()
}

func (s *NoteService) validateUpdate(update types.NoteUpdate) error {
	verr := &ValidationError{}
	if update.Title.Set {
		switch {
		case strings.TrimSpace(update.Title.Value) == "":
			verr.add("title", "Title cannot be empty.")
		case utf8.RuneCountInString(update.Title.Value) > MaxTitleLength:
			verr.add("title", "Title must be at most 200 characters.")
		}
	}
	if update.Content.Set && strings.TrimSpace(update.Content.Value) == "" {
		verr.add("content", "Content cannot be empty.")
	}
	if update.NoteTaker.Set {
		s.validateNoteTaker(verr, update.NoteTaker.Value)
	}
	return verr.orNil()
}

func (s *NoteService) validateNoteTaker(verr *ValidationError, name string) {
	if name == "" {
		return
	}
	if _, ok := s.noteTakers[name]; !ok {
		verr.add("noteTaker", "Unknown note taker.")
	}
}

func applyUpdate(note *types.Note, u types.NoteUpdate) {
	if u.Title.Set {
		note.Title = u.Title.Value
	}
	if u.Content.Set {
		note.Content = u.Content.Value
	}
	if u.Location.Set {
		note.Location = u.Location.Value
	}
	if u.Tags.Set {
		note.Tags = append([]string{}, u.Tags.Value...)
	}
	if u.NoteTaker.Set {
		note.NoteTaker = u.NoteTaker.Value
	}
	if u.SentToChat.Set {
		note.SentToChat = u.SentToChat.Value
	}
}

func indexOf(notes []types.Note, id string) int {
	for i, n := range notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}
