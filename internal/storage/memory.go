package storage

import (
	"context"
	"strconv"
	"sync"
)

// MemoryBackend keeps the document in process memory. It is meant for tests
// and local experiments; nothing survives a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	data    []byte
	version int
	exists  bool
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Read(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, "", ErrNotExist
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, strconv.Itoa(m.version), nil
}

func (m *MemoryBackend) Write(ctx context.Context, data []byte, rev string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch rev {
	case AnyRevision:
	case NoRevision:
		if m.exists {
			return "", ErrRevisionMismatch
		}
	default:
		if !m.exists || rev != strconv.Itoa(m.version) {
			return "", ErrRevisionMismatch
		}
	}

	m.data = make([]byte, len(data))
	copy(m.data, data)
	m.version++
	m.exists = true
	return strconv.Itoa(m.version), nil
}

func (m *MemoryBackend) Name() string {
	return "memory"
}

func (m *MemoryBackend) Close() error {
	return nil
}
