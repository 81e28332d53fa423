package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"docs-ingestion-service/internal/domain/model"
	"docs-ingestion-service/internal/domain/ports/adapter"
	"docs-ingestion-service/internal/resilience"
)

const (
	userAgent    = "docs-ingestion-service/1.0"
	maxBodyBytes = 5 * 1024 * 1024
)

var _ adapter.PageFetcher = (*Fetcher)(nil)

// Fetcher retrieves a page over plain HTTP and extracts title, structured
// text and outgoing links from the DOM. Headings are rendered as
// markdown-style lines so downstream section detection keeps working.
type Fetcher struct {
	client *http.Client
	log    zerolog.Logger
}

func NewFetcher(logger *zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logger.With().Str("component", "Fetcher").Logger(),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, pageURL string, opts adapter.FetchOptions) (*model.FetchedPage, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.RespectRobots {
		if allowed := f.robotsAllow(ctx, pageURL); !allowed {
			return nil, resilience.NewScrapingError(
				fmt.Sprintf("fetch of %s disallowed by robots.txt", pageURL), false, nil, nil)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, resilience.NewScrapingError("build request: "+err.Error(), false, nil, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// Transport failures (timeouts, resets, DNS) are worth retrying.
		return nil, resilience.NewScrapingError("fetch "+pageURL+": "+err.Error(), true, nil, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(pageURL, resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewScrapingError("read body: "+err.Error(), true, nil, err)
	}

	page, err := extractPage(pageURL, body)
	if err != nil {
		return nil, resilience.NewScrapingError("extract "+pageURL+": "+err.Error(), false, nil, err)
	}
	page.Metadata["contentType"] = resp.Header.Get("Content-Type")

	f.log.Debug().Str("url", pageURL).Int("content_len", len(page.Content)).Msg("page fetched")
	return page, nil
}

// statusError maps HTTP status codes onto the retry policy: 429 carries its
// Retry-After, 5xx/408 are retryable, 401/403 and other client errors are not.
func statusError(pageURL string, code int, retryAfter string) error {
	msg := fmt.Sprintf("HTTP %d for %s", code, pageURL)
	switch {
	case code == http.StatusTooManyRequests:
		after := resilience.DefaultRetryAfter
		if secs, err := time.ParseDuration(retryAfter + "s"); err == nil && secs > 0 {
			after = secs
		}
		return resilience.NewRateLimitError(msg, after, nil, nil)
	case code == http.StatusRequestTimeout || code >= 500:
		return resilience.NewScrapingError(msg, true, nil, nil)
	default:
		return resilience.NewScrapingError(msg, false, nil, nil)
	}
}

// robotsAllow does a best-effort robots.txt check: any failure to fetch or
// parse robots.txt allows the crawl.
func (f *Fetcher) robotsAllow(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return true
	}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return true
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return true
	}
	return robotsPathAllowed(string(body), u.Path)
}

// robotsPathAllowed applies the Disallow rules of the wildcard agent group.
func robotsPathAllowed(robots, path string) bool {
	if path == "" {
		path = "/"
	}
	applies := false
	for _, line := range strings.Split(robots, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user-agent:"):
			agent := strings.TrimSpace(line[len("user-agent:"):])
			applies = agent == "*" || strings.Contains(strings.ToLower(userAgent), strings.ToLower(agent))
		case applies && strings.HasPrefix(lower, "disallow:"):
			rule := strings.TrimSpace(line[len("disallow:"):])
			if rule != "" && strings.HasPrefix(path, rule) {
				return false
			}
		}
	}
	return true
}

// extractPage pulls title, headed text and links out of the DOM. Scripts,
// styles and chrome elements are dropped before text extraction.
func extractPage(pageURL string, html []byte) (*model.FetchedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, nav, header, footer, noscript, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var sb strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		if level := headingLevel(goquery.NodeName(s)); level > 0 {
			sb.WriteString(strings.Repeat("#", level) + " " + text + "\n")
			return
		}
		sb.WriteString(text + "\n")
	})

	var links []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolveLink(pageURL, href)
		if abs != "" && !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})

	return &model.FetchedPage{
		URL:      pageURL,
		Title:    title,
		Content:  strings.TrimSpace(sb.String()),
		Metadata: map[string]string{},
		Links:    links,
	}, nil
}

func headingLevel(node string) int {
	if len(node) == 2 && node[0] == 'h' && node[1] >= '1' && node[1] <= '6' {
		return int(node[1] - '0')
	}
	return 0
}

func resolveLink(base, href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
