package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"codeprompt/internal/logging"
)

// SQLiteRecorder keeps recordings in a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteRecorder opens (creating if needed) the database at path.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteRecorder")
	defer timer.Stop()

	logging.Store("Initializing QA store at path: %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	r := &SQLiteRecorder{db: db, dbPath: path}
	if err := r.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure qa schema: %w", err)
	}
	return r, nil
}

// ensureSchema creates the qa_records table if it doesn't exist.
func (r *SQLiteRecorder) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS qa_records (
		id TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT,
		error TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_qa_session ON qa_records(session, created_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRecorder) Record(ctx context.Context, rec *QARecord) error {
	stamp(rec)

	var response sql.NullString
	if rec.Response != nil {
		data, err := json.Marshal(rec.Response)
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		response = sql.NullString{String: string(data), Valid: true}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO qa_records (id, session, prompt, response, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Session, rec.Prompt, response, rec.Error, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store QA record %s: %v", rec.ID, err)
		return err
	}
	logging.StoreDebug("Recorded QA %s in session %q", rec.ID, rec.Session)
	return nil
}

func (r *SQLiteRecorder) Recordings(ctx context.Context, session string) ([]QARecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session, prompt, response, error, created_at
		FROM qa_records
		WHERE session = ?
		ORDER BY created_at, rowid`, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query QA records: %w", err)
	}
	defer rows.Close()

	records := []QARecord{}
	for rows.Next() {
		var (
			rec      QARecord
			response sql.NullString
			errText  sql.NullString
			created  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Prompt, &response, &errText, &created); err != nil {
			return nil, fmt.Errorf("failed to scan QA record: %w", err)
		}
		if response.Valid {
			if err := json.Unmarshal([]byte(response.String), &rec.Response); err != nil {
				return nil, fmt.Errorf("failed to decode response of %s: %w", rec.ID, err)
			}
		}
		rec.Error = errText.String
		rec.CreatedAt = time.Unix(0, created)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
