package engine

import (
	"context"

	"codeprompt/internal/logging"
	"codeprompt/internal/store"
	"codeprompt/internal/tactile"
)

var _ tactile.Querier = (*recordingQuerier)(nil)

// RecordQA starts recording LLM queries under session. Recording stays on
// until another session is chosen.
func (e *Engine) RecordQA(session string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.qaSession = &session
	logging.StoreDebug("Recording QA under session %q", session)
}

// QARecordings returns the queries recorded under session, oldest first.
func (e *Engine) QARecordings(ctx context.Context, session string) ([]store.QARecord, error) {
	return e.recorder.Recordings(ctx, session)
}

func (e *Engine) activeSession() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.qaSession == nil {
		return "", false
	}
	return *e.qaSession, true
}

// recordingQuerier answers fragment queries through the registry and
// records each exchange while a QA session is active.
type recordingQuerier struct {
	engine *Engine
}

func (q *recordingQuerier) QueryLLM(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	out, err := q.engine.registry.QueryLLM(ctx, prompt, schema)
	q.record(ctx, prompt, out, err)
	return out, err
}

func (q *recordingQuerier) QueryContext(ctx context.Context, prompt string, schema, options map[string]any) (map[string]any, error) {
	out, err := q.engine.registry.QueryContext(ctx, prompt, schema, options)
	q.record(ctx, prompt, out, err)
	return out, err
}

func (q *recordingQuerier) record(ctx context.Context, prompt string, out map[string]any, qerr error) {
	session, ok := q.engine.activeSession()
	if !ok {
		return
	}
	rec := &store.QARecord{Session: session, Prompt: prompt, Response: out}
	if qerr != nil {
		rec.Error = qerr.Error()
	}
	if err := q.engine.recorder.Record(ctx, rec); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to record QA: %v", err)
	}
}
