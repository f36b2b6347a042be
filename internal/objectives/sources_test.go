package objectives

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Release notes</title></head>
<body>
<nav>Home | Docs | Blog</nav>
<article>
<h1>Release notes</h1>
<p>Version 2.4 ships a faster indexer and fixes the crash on empty workspaces.
The indexer now processes files in parallel, which cuts the time to build a
fresh index roughly in half on large repositories.</p>
<p>Upgrading is a drop-in replacement. Existing indexes are rebuilt on first
start, and the old cache directory can be removed afterwards.</p>
<ul><li>Parallel indexing</li><li>Empty workspace fix</li></ul>
</article>
<script>console.log("tracking")</script>
</body></html>`

func TestPageReader_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	page, err := NewPageReader(0).Read(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if page.Extractor != "readability" {
		t.Errorf("expected readability extractor, got %q", page.Extractor)
	}
	if !strings.Contains(page.Text, "faster indexer") {
		t.Errorf("article text missing: %q", page.Text)
	}
	if strings.Contains(page.Text, "tracking") || strings.Contains(page.Text, "<p>") {
		t.Errorf("markup leaked into text: %q", page.Text)
	}
	md := page.Markdown()
	if !strings.HasPrefix(md, "## Source: "+srv.URL) {
		t.Errorf("unexpected markdown header: %q", md)
	}
}

func TestPageReader_JSONAndTruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"green","builds":[1,2,3]}`))
	}))
	defer srv.Close()

	page, err := NewPageReader(0).Read(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if page.Extractor != "json" || !strings.Contains(page.Text, "\n  \"status\": \"green\"") {
		t.Errorf("expected indented json, got %q %q", page.Extractor, page.Text)
	}

	short, err := NewPageReader(10).Read(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(short.Text) != 10 || !short.Truncated {
		t.Errorf("expected truncation to 10 chars, got %d %v", len(short.Text), short.Truncated)
	}
	if !strings.HasSuffix(short.Markdown(), "(truncated)") {
		t.Errorf("truncation not marked: %q", short.Markdown())
	}
}

func TestPageReader_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewPageReader(0)
	cases := []string{"ftp://example.com/file", "https://", srv.URL}
	for _, u := range cases {
		if _, err := r.Read(context.Background(), u); err == nil {
			t.Errorf("expected error for %q", u)
		}
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	got := htmlToMarkdown(`<h2>Intro</h2><p>See <a href="https://x.dev">the docs</a>.</p><ul><li>one</li></ul>`)
	for _, want := range []string{"## Intro", "[the docs](https://x.dev)", "- one"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}
