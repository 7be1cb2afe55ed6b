package server

import (
	"context"
	"errors"

	"github.com/field-notes/apiserver/config"
	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/relay"
)

// Worker consumes queued send-to-chat jobs.
type Worker struct {
	s     *Server
	relay *relay.Relay
}

// NewWorker opens note storage, the webhook client and the relay queue.
func NewWorker(ctx context.Context, cfg config.Config, log *logger.Logger) (*Worker, error) {
	if cfg.Relay.MQBackend == "" {
		return nil, errors.New("relay worker needs FIELD_NOTES_MQ_BACKEND")
	}
	if cfg.Relay.WebhookURL == "" {
		return nil, errors.New("relay worker needs GOOGLE_CHAT_WEBHOOK_URL")
	}

	s := &Server{log: log}
	notes, _, err := s.openNotes(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rel, err := s.openRelay(ctx, cfg, notes)
	if err != nil {
		s.close()
		return nil, err
	}
	return &Worker{s: s, relay: rel}, nil
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.s.log.Info().Msg("relay worker started")
	err := w.relay.Consume(w.s.log.WithContext(ctx))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the worker's connections.
func (w *Worker) Close() {
	w.s.close()
}
