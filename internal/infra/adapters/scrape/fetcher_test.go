package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/resilience"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>API Reference</title><style>body { color: red }</style></head>
<body>
  <nav><a href="/ignored">Navigation</a></nav>
  <h1>Getting Started</h1>
  <p>Install the client library first.</p>
  <h2>Authentication</h2>
  <p>Pass a bearer token with every request.</p>
  <script>console.log("noise")</script>
  <a href="/guide">Guide</a>
  <a href="https://other.example.com/page#frag">External</a>
  <a href="mailto:team@example.com">Mail</a>
</body>
</html>`

func newTestFetcher() *Fetcher {
	nop := zerolog.Nop()
	return NewFetcher(&nop)
}

func TestFetchExtractsStructuredText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := newTestFetcher().Fetch(context.Background(), srv.URL, adapter.FetchOptions{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.Title != "API Reference" {
		t.Fatalf("title = %q", page.Title)
	}
	if !strings.Contains(page.Content, "# Getting Started") || !strings.Contains(page.Content, "## Authentication") {
		t.Fatalf("headings must be preserved as markdown lines:\n%s", page.Content)
	}
	if strings.Contains(page.Content, "console.log") || strings.Contains(page.Content, "Navigation") {
		t.Fatalf("script/nav content must be stripped:\n%s", page.Content)
	}

	wantLink := srv.URL + "/guide"
	found := false
	for _, l := range page.Links {
		if l == wantLink {
			found = true
		}
		if strings.HasPrefix(l, "mailto:") || strings.Contains(l, "#") {
			t.Fatalf("link %q must be filtered", l)
		}
	}
	if !found {
		t.Fatalf("relative link not resolved, links = %v", page.Links)
	}
}

func TestFetchStatusCodeMapping(t *testing.T) {
	cases := []struct {
		code      int
		retryable bool
		category  resilience.Category
	}{
		{http.StatusInternalServerError, true, resilience.CategoryScraping},
		{http.StatusBadGateway, true, resilience.CategoryScraping},
		{http.StatusRequestTimeout, true, resilience.CategoryScraping},
		{http.StatusUnauthorized, false, resilience.CategoryScraping},
		{http.StatusForbidden, false, resilience.CategoryScraping},
		{http.StatusNotFound, false, resilience.CategoryScraping},
		{http.StatusTooManyRequests, true, resilience.CategoryRateLimit},
	}

	for _, tc := range cases {
		code := tc.code
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		_, err := newTestFetcher().Fetch(context.Background(), srv.URL, adapter.FetchOptions{})
		srv.Close()
		if err == nil {
			t.Fatalf("HTTP %d must fail", code)
		}
		var perr *resilience.PipelineError
		if !errors.As(err, &perr) {
			t.Fatalf("HTTP %d: error is not a pipeline error: %v", code, err)
		}
		if perr.Retryable != tc.retryable || perr.Category != tc.category {
			t.Fatalf("HTTP %d: retryable=%t category=%s, want %t/%s",
				code, perr.Retryable, perr.Category, tc.retryable, tc.category)
		}
	}
}

func TestFetchRespectsRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>ok</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher()

	if _, err := f.Fetch(context.Background(), srv.URL+"/public", adapter.FetchOptions{RespectRobots: true}); err != nil {
		t.Fatalf("allowed path must fetch: %v", err)
	}

	_, err := f.Fetch(context.Background(), srv.URL+"/private/doc", adapter.FetchOptions{RespectRobots: true})
	if err == nil {
		t.Fatal("disallowed path must be refused")
	}
	var perr *resilience.PipelineError
	if !errors.As(err, &perr) || perr.Retryable {
		t.Fatalf("robots refusal must be a non-retryable scraping error: %v", err)
	}

	// With the flag off, robots.txt is never consulted.
	if _, err := f.Fetch(context.Background(), srv.URL+"/private/doc", adapter.FetchOptions{}); err != nil {
		t.Fatalf("robots must be ignored without the flag: %v", err)
	}
}

func TestRobotsPathAllowed(t *testing.T) {
	robots := `
# crawler rules
User-agent: special-bot
Disallow: /

User-agent: *
Disallow: /admin
Disallow: /tmp/
`
	if robotsPathAllowed(robots, "/admin/settings") {
		t.Fatal("/admin/settings must be disallowed")
	}
	if !robotsPathAllowed(robots, "/docs") {
		t.Fatal("/docs must be allowed")
	}
	if !robotsPathAllowed("", "/anything") {
		t.Fatal("empty robots allows everything")
	}
}
