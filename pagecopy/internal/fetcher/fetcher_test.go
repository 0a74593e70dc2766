package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/page", http.StatusFound)
		case "/page":
			if r.Header.Get("User-Agent") != "test-agent" {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><body>ok</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(WithUserAgent("test-agent"))
	p, err := f.Fetch(t.Context(), srv.URL+"/old")
	if err != nil {
		t.Fatal(err)
	}
	if p.URL.Path != "/page" {
		t.Errorf("final URL = %s", p.URL)
	}
	if string(p.Body) != `<html><body>ok</body></html>` || p.ContentType != "text/html" {
		t.Errorf("page = %+v", p)
	}
	if p.Sufficient {
		t.Error("tiny page must not be sufficient")
	}

	if _, err := f.Fetch(t.Context(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want status 404", err)
	}
}

func TestSheetLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/css/site.css" {
			w.Write([]byte(`.a { color: red }`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	base, _ := url.Parse(srv.URL + "/blog/post")
	load := New().SheetLoader(t.Context(), base)

	if text, ok := load("/css/site.css"); !ok || text != `.a { color: red }` {
		t.Errorf("same-origin sheet = %q, %v", text, ok)
	}
	if _, ok := load("nope.css"); ok {
		t.Error("404 sheet must not load")
	}
	if _, ok := load("https://cdn.example.com/x.css"); ok {
		t.Error("cross-origin sheet must be skipped")
	}
}

var errBlocked = errors.New("blocked")

func TestFetch_RedirectsAreChecked(t *testing.T) {
	var secretHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public":
			http.Redirect(w, r, "/internal/secret", http.StatusFound)
		case "/internal/secret":
			secretHits++
			w.Write([]byte(`secret=true`))
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	check := func(_ context.Context, rawURL string) error {
		if strings.Contains(rawURL, "/internal/") {
			return errBlocked
		}
		return nil
	}
	f := New(WithURLCheck(check))

	if _, err := f.Fetch(t.Context(), srv.URL+"/public"); !errors.Is(err, errBlocked) {
		t.Fatalf("redirect to a blocked URL: err = %v", err)
	}
	if secretHits != 0 {
		t.Errorf("blocked target was requested %d times", secretHits)
	}
	if _, err := f.Fetch(t.Context(), srv.URL+"/loop"); err == nil || !strings.Contains(err.Error(), "too many redirects") {
		t.Errorf("redirect loop: err = %v", err)
	}

	base, _ := url.Parse(srv.URL + "/page")
	if _, ok := f.SheetLoader(t.Context(), base)("/internal/site.css"); ok {
		t.Error("blocked stylesheet must not load")
	}
}

func TestNew_KeepsClientRedirectPolicy(t *testing.T) {
	stop := errors.New("stop")
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return stop }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	if _, err := New(WithClient(client)).Fetch(t.Context(), srv.URL); !errors.Is(err, stop) {
		t.Errorf("err = %v", err)
	}
	if client.CheckRedirect == nil {
		t.Error("caller's client must not be modified")
	}
}
