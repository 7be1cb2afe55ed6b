// Package relay forwards notes to the group chat webhook and records the
// delivery on the note.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/mq"
	"github.com/field-notes/apiserver/internal/services"
	"github.com/field-notes/apiserver/types"
)

// ErrNotConfigured is returned when no webhook URL is set.
var ErrNotConfigured = errors.New("chat webhook not configured")

// Notes is the part of the note lifecycle the relay needs.
type Notes interface {
	GetNote(ctx context.Context, id string) (types.Note, error)
	MarkSentToChat(ctx context.Context, id string) (types.Note, error)
}

// Poster delivers a formatted message.
type Poster interface {
	Post(ctx context.Context, text string) error
}

// Job is the queued form of a relay request.
type Job struct {
	NoteID string `json:"noteId"`
}

// Relay sends notes to chat, either inline or through a queue consumed by
// the relay worker.
type Relay struct {
	notes    Notes
	poster   Poster
	queue    *mq.MQ
	channel  string
	location *time.Location
}

// New builds a Relay. poster may be nil when no webhook is configured;
// queue may be nil for inline delivery.
func New(notes Notes, poster Poster, queue *mq.MQ, channel string) *Relay {
	return &Relay{
		notes:    notes,
		poster:   poster,
		queue:    queue,
		channel:  channel,
		location: time.UTC,
	}
}

// SetLocation changes the time zone used when rendering timestamps.
func (r *Relay) SetLocation(loc *time.Location) {
	if loc != nil {
		r.location = loc
	}
}

// Queued reports whether Dispatch enqueues instead of posting inline.
func (r *Relay) Queued() bool {
	return r.queue != nil
}

// Send posts the note and, once the webhook accepted it, marks it sent.
func (r *Relay) Send(ctx context.Context, noteID string) (types.Note, error) {
	if r.poster == nil {
		return types.Note{}, ErrNotConfigured
	}
	note, err := r.notes.GetNote(ctx, noteID)
	if err != nil {
		return types.Note{}, err
	}
	if err := r.poster.Post(ctx, FormatNote(note, r.location)); err != nil {
		return types.Note{}, err
	}
	return r.notes.MarkSentToChat(ctx, noteID)
}

// Dispatch sends inline, or checks the note exists and enqueues it. queued
// reports which path was taken.
func (r *Relay) Dispatch(ctx context.Context, noteID string) (note types.Note, queued bool, err error) {
	if r.queue == nil {
		note, err = r.Send(ctx, noteID)
		return note, false, err
	}
	if r.poster == nil {
		return types.Note{}, false, ErrNotConfigured
	}
	note, err = r.notes.GetNote(ctx, noteID)
	if err != nil {
		return types.Note{}, false, err
	}
	if _, err := r.queue.PublishJSON(ctx, r.channel, Job{NoteID: noteID}, map[string]string{"noteId": noteID}); err != nil {
		return types.Note{}, false, fmt.Errorf("enqueue relay job: %w", err)
	}
	return note, true, nil
}

// Consume processes queued jobs until ctx is done. Jobs for notes that no
// longer exist, and malformed jobs, are dropped.
func (r *Relay) Consume(ctx context.Context) error {
	if r.queue == nil {
		return errors.New("relay queue not configured")
	}
	log := logger.FromContext(ctx)
	return r.queue.Subscribe(ctx, r.channel, func(ctx context.Context, msg mq.Message) error {
		var job Job
		if err := msg.Decode(&job); err != nil || job.NoteID == "" {
			log.Error().Str("message_id", msg.ID).Msg("dropping malformed relay job")
			return nil
		}
		note, err := r.Send(ctx, job.NoteID)
		switch {
		case errors.Is(err, services.ErrNotFound):
			log.Warn().Str("note_id", job.NoteID).Msg("note vanished before relay, dropping job")
			return nil
		case err != nil:
			log.Error().Err(err).Str("note_id", job.NoteID).Msg("relay failed")
			return err
		}
		log.Info().Str("note_id", note.ID).Msg("note relayed to chat")
		return nil
	})
}
