package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sidekick/connectivity"
	"github.com/hazyhaar/sidekick/dbopen"
	"github.com/hazyhaar/sidekick/kit"
)

func testLogger(t *testing.T) *Logger {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := New(db, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return l
}

func TestLog_Query(t *testing.T) {
	l := testLogger(t)
	defer l.Close()
	ctx := context.Background()

	if err := l.Log(ctx, &Entry{Operation: "block_name", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := l.Log(ctx, &Entry{Operation: "copy_page", ErrorMessage: "boom", Timestamp: 2}); err != nil {
		t.Fatal(err)
	}

	all, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Operation != "copy_page" || all[0].Status != "error" {
		t.Fatalf("all = %+v", all)
	}
	if all[1].Status != "success" || all[1].ID == "" {
		t.Errorf("defaults not filled: %+v", all[1])
	}

	errs, _ := l.Query(ctx, Filter{Status: "error"})
	if len(errs) != 1 {
		t.Errorf("errors = %+v", errs)
	}
	one, _ := l.Query(ctx, Filter{Operation: "block_name", Limit: 1})
	if len(one) != 1 || one[0].Operation != "block_name" {
		t.Errorf("by operation = %+v", one)
	}
}

func TestMiddleware_RecordsOnClose(t *testing.T) {
	l := testLogger(t)
	ctx := kit.WithRequestID(kit.WithTransport(context.Background(), "mcp"), "req_1")

	ok := l.Middleware("meta_display")(func(context.Context, []byte) ([]byte, error) {
		return []byte(`{}`), nil
	})
	fail := l.Middleware("get_snapshot")(func(context.Context, []byte) ([]byte, error) {
		return nil, &connectivity.ErrInvalidPayload{Service: "get_snapshot", Cause: errors.New("id is required")}
	})

	ok(ctx, []byte(`{"key":"a"}`))
	fail(ctx, []byte(`{}`))

	// Close flushes the buffered entries.
	l.Close()

	entries, err := l.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	byOp := map[string]Entry{}
	for _, e := range entries {
		byOp[e.Operation] = e
	}
	if e := byOp["meta_display"]; e.Transport != "mcp" || e.RequestID != "req_1" || e.PayloadBytes != 11 {
		t.Errorf("meta_display = %+v", e)
	}
	if e := byOp["get_snapshot"]; e.Status != "error" || e.ErrorCode != connectivity.CodeInvalidPayload {
		t.Errorf("get_snapshot = %+v", e)
	}
}

// An unbuffered logger either hands the entry to the flush loop or writes
// it synchronously; both paths must persist it.
func TestLogAsync_Unbuffered(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	l := New(db, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	l.LogAsync(&Entry{Operation: "block_name"})
	l.Close()

	entries, _ := l.Query(context.Background(), Filter{})
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestCleanup(t *testing.T) {
	l := testLogger(t)
	defer l.Close()
	ctx := context.Background()

	l.Log(ctx, &Entry{Operation: "old", Timestamp: time.Now().Add(-48 * time.Hour).UnixMilli()})
	l.Log(ctx, &Entry{Operation: "new"})

	n, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
}

func TestInit(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	if err := Init(db); err != nil {
		t.Fatalf("init must be idempotent: %v", err)
	}
}
