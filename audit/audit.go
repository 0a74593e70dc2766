// Package audit keeps a trail of operation calls in SQLite: which
// operation ran, over which transport, for how long and with what outcome.
// Entries are buffered and written in batches.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/sidekick/connectivity"
	"github.com/hazyhaar/sidekick/idgen"
	"github.com/hazyhaar/sidekick/kit"
)

// Schema is the DDL of the call log.
const Schema = `
CREATE TABLE IF NOT EXISTS operation_calls (
    id             TEXT PRIMARY KEY,
    ts             INTEGER NOT NULL,
    operation      TEXT NOT NULL,
    transport      TEXT NOT NULL DEFAULT '',
    request_id     TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    error_code     TEXT NOT NULL DEFAULT '',
    error_message  TEXT NOT NULL DEFAULT '',
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    payload_bytes  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_calls_ts ON operation_calls(ts DESC);
CREATE INDEX IF NOT EXISTS idx_calls_operation ON operation_calls(operation, ts DESC);
`

// Init creates the call log table.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("audit: init: %w", err)
	}
	return nil
}

// Entry is one operation call.
type Entry struct {
	ID           string `json:"id"`
	Timestamp    int64  `json:"timestamp"` // epoch milliseconds
	Operation    string `json:"operation"`
	Transport    string `json:"transport,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	Status       string `json:"status"` // "success" or "error"
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	PayloadBytes int    `json:"payload_bytes"`
}

// Filter narrows Query. Empty fields match everything.
type Filter struct {
	Operation string
	Status    string
	Limit     int // default 100
}

const (
	batchSize     = 100
	flushInterval = 5 * time.Second
)

// Logger persists entries asynchronously.
type Logger struct {
	db     *sql.DB
	logger *slog.Logger
	ch     chan *Entry
	stop   chan struct{}
	done   chan struct{}
}

// New starts a Logger buffering up to bufferSize entries. Close flushes
// and stops it.
func New(db *sql.DB, bufferSize int, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{
		db:     db,
		logger: logger,
		ch:     make(chan *Entry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

// Log writes e synchronously.
func (l *Logger) Log(ctx context.Context, e *Entry) error {
	fillDefaults(e)
	return l.insert(ctx, e)
}

// LogAsync queues e, writing it synchronously when the buffer is full.
func (l *Logger) LogAsync(e *Entry) {
	fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: buffer full, sync fallback", "operation", e.Operation)
		if err := l.insert(context.Background(), e); err != nil {
			l.logger.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// Middleware records every call of op.
func (l *Logger) Middleware(op string) connectivity.HandlerMiddleware {
	return func(next connectivity.Handler) connectivity.Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)

			e := &Entry{
				Timestamp:    start.UnixMilli(),
				Operation:    op,
				Transport:    kit.GetTransport(ctx),
				RequestID:    kit.GetRequestID(ctx),
				DurationMs:   time.Since(start).Milliseconds(),
				PayloadBytes: len(payload),
			}
			if err != nil {
				e.Status = "error"
				e.ErrorCode = connectivity.ErrorCode(err)
				e.ErrorMessage = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}

// Query returns entries matching f, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT id, ts, operation, transport, request_id, status,
		error_code, error_message, duration_ms, payload_bytes
		FROM operation_calls WHERE 1=1`
	var args []any
	if f.Operation != "" {
		q += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Operation, &e.Transport, &e.RequestID, &e.Status,
			&e.ErrorCode, &e.ErrorMessage, &e.DurationMs, &e.PayloadBytes); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than maxAge.
func (l *Logger) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	threshold := time.Now().Add(-maxAge).UnixMilli()
	res, err := l.db.ExecContext(ctx, "DELETE FROM operation_calls WHERE ts < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine.
func (l *Logger) Close() error {
	close(l.stop)
	<-l.done
	return nil
}

func fillDefaults(e *Entry) {
	if e.ID == "" {
		e.ID = idgen.Call()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Status == "" {
		e.Status = "success"
		if e.ErrorMessage != "" {
			e.Status = "error"
		}
	}
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]*Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := l.insertBatch(ctx, batch); err != nil {
			l.logger.Error("audit: flush", "error", err, "entries", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const insertSQL = `INSERT INTO operation_calls
	(id, ts, operation, transport, request_id, status,
	 error_code, error_message, duration_ms, payload_bytes)
	VALUES (?,?,?,?,?,?,?,?,?,?)`

func args(e *Entry) []any {
	return []any{e.ID, e.Timestamp, e.Operation, e.Transport, e.RequestID, e.Status,
		e.ErrorCode, e.ErrorMessage, e.DurationMs, e.PayloadBytes}
}

func (l *Logger) insert(ctx context.Context, e *Entry) error {
	if _, err := l.db.ExecContext(ctx, insertSQL, args(e)...); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (l *Logger) insertBatch(ctx context.Context, batch []*Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range batch {
		if _, err := stmt.ExecContext(ctx, args(e)...); err != nil {
			l.logger.Error("audit: insert", "error", err, "id", e.ID)
		}
	}
	return tx.Commit()
}
