// Package store persists question/answer recordings: every LLM query a
// fragment makes while a QA session is active, with the answer it got.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeprompt/internal/logging"
)

// QARecord is one recorded query.
type QARecord struct {
	ID        string         `json:"id" yaml:"id"`
	Session   string         `json:"session" yaml:"session"`
	Prompt    string         `json:"prompt" yaml:"prompt"`
	Response  map[string]any `json:"response,omitempty" yaml:"response,omitempty"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
}

// Recorder stores QA records grouped by session.
type Recorder interface {
	// Record stores rec, filling in ID and CreatedAt when unset.
	Record(ctx context.Context, rec *QARecord) error
	// Recordings returns the records of session in recording order. An
	// unknown session yields an empty list.
	Recordings(ctx context.Context, session string) ([]QARecord, error)
	Close() error
}

func stamp(rec *QARecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
}

// MemoryRecorder keeps recordings in process memory.
type MemoryRecorder struct {
	mu       sync.RWMutex
	sessions map[string][]QARecord
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{sessions: make(map[string][]QARecord)}
}

func (m *MemoryRecorder) Record(ctx context.Context, rec *QARecord) error {
	stamp(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.Session] = append(m.sessions[rec.Session], *rec)
	logging.StoreDebug("Recorded QA %s in session %q", rec.ID, rec.Session)
	return nil
}

func (m *MemoryRecorder) Recordings(ctx context.Context, session string) ([]QARecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]QARecord{}, m.sessions[session]...), nil
}

func (m *MemoryRecorder) Close() error { return nil }
