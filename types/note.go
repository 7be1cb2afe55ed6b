package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Note is a single field observation.
type Note struct {
	// ID is the opaque, immutable identifier of the note.
	ID string `json:"id"`

	// Title is an optional short heading, at most 200 characters.
	Title string `json:"title,omitempty"`

	// Content is the optional body of the observation.
	Content string `json:"content,omitempty"`

	// Location is free-form text or a "lat,lon" pair.
	Location string `json:"location,omitempty"`

	// Tags keeps insertion order; duplicates are allowed.
	Tags []string `json:"tags"`

	// NoteTaker is one of the configured author names, if set.
	NoteTaker string `json:"noteTaker,omitempty"`

	// CreatedAt is set once when the note is created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is rewritten on every successful update.
	UpdatedAt time.Time `json:"updatedAt"`

	// SentToChat reports whether the note was relayed to the chat webhook.
	SentToChat bool `json:"sentToChat"`
}

// NoteInput carries the caller-supplied fields of a new note.
type NoteInput struct {
	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content,omitempty"`
	Location  string   `json:"location,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	NoteTaker string   `json:"noteTaker,omitempty"`
}

// NoteUpdate is a partial update. A field that is Set overwrites the stored
// value even when it holds the zero value; unset fields are left untouched.
type NoteUpdate struct {
	Title      Optional[string]   `json:"title"`
	Content    Optional[string]   `json:"content"`
	Location   Optional[string]   `json:"location"`
	Tags       Optional[[]string] `json:"tags"`
	NoteTaker  Optional[string]   `json:"noteTaker"`
	SentToChat Optional[bool]     `json:"sentToChat"`
}

// Optional distinguishes "absent" from "present with the zero value" when
// decoding JSON. A JSON null is treated as present with the zero value.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked when the key
// is present in the object, which is what marks the value as Set.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
