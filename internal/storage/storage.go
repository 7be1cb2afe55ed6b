// Package storage holds a single serialized document in one of several
// backends. Every backend supports whole-document reads and whole-document
// writes guarded by a revision check; none supports partial updates.
package storage

import (
	"context"
	"errors"
	"time"
)

// AnyRevision makes a write unconditional.
const AnyRevision = "*"

// NoRevision makes a write succeed only when the document does not exist yet.
const NoRevision = ""

var (
	// ErrNotExist is returned by Read when the document has never been written.
	ErrNotExist = errors.New("storage: document does not exist")

	// ErrRevisionMismatch is returned by Write when the stored revision differs
	// from the one the caller read.
	ErrRevisionMismatch = errors.New("storage: revision mismatch")
)

// Backend defines the document operations common to all backends.
//
// Read returns the document and an opaque revision token. Write replaces the
// document if the stored revision equals rev (or unconditionally for
// AnyRevision) and returns the new revision.
type Backend interface {
	Read(ctx context.Context) ([]byte, string, error)
	Write(ctx context.Context, data []byte, rev string) (string, error)
	Name() string
	Close() error
}

// Storage wraps a Backend with a per-operation timeout.
type Storage struct {
	backend Backend
	timeout time.Duration
}

// NewStorage constructs a Storage wrapper for the provided backend. A zero
// timeout leaves deadlines to the caller's context.
func NewStorage(backend Backend, timeout time.Duration) *Storage {
	return &Storage{backend: backend, timeout: timeout}
}

// Read fetches the document.
func (s *Storage) Read(ctx context.Context) ([]byte, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.backend.Read(ctx)
}

// Write replaces the document.
func (s *Storage) Write(ctx context.Context, data []byte, rev string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.backend.Write(ctx, data, rev)
}

// Name returns the backend name, for logs.
func (s *Storage) Name() string {
	return s.backend.Name()
}

// Ping checks that the backend is reachable. Backends without a cheaper
// probe are checked with a read.
func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if p, ok := s.backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	if _, _, err := s.backend.Read(ctx); err != nil && !errors.Is(err, ErrNotExist) {
		return err
	}
	return nil
}

// Close releases the backend.
func (s *Storage) Close() error {
	return s.backend.Close()
}

func (s *Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
