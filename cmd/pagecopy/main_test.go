package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/sidekick/snapshot"
)

func TestRun_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	src := `<html><head><style>#h { background-image: url(h.png) }</style></head><body><div id="h"></div></body></html>`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(t.TempDir(), "sidekick.yaml")
	os.WriteFile(cfgPath, []byte("browser:\n  disable: true\n"), 0o644)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	snap, err := run(context.Background(), logger, cfgPath, "", path, "https://example.com/", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Source != snapshot.SourceInline || snap.Styled != 1 {
		t.Fatalf("snap = %+v", snap)
	}

	var buf bytes.Buffer
	if err := write(&buf, snap, "html"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "<html>") || !strings.Contains(buf.String(), "background-image") {
		t.Errorf("html output = %s", buf.String())
	}
}

func TestWrite_Formats(t *testing.T) {
	snap := &snapshot.Snapshot{ID: "snap_1", HTML: "<html></html>"}
	var buf bytes.Buffer
	if err := write(&buf, snap, "json"); err != nil || !strings.Contains(buf.String(), `"id": "snap_1"`) {
		t.Fatalf("json: %v %s", err, buf.String())
	}
	if err := write(&buf, snap, "markdown"); err == nil {
		t.Error("markdown without content must fail")
	}
	if err := write(&buf, snap, "pdf"); err == nil {
		t.Error("unknown format must fail")
	}
}
