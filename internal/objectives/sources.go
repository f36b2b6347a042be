package objectives

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const (
	pageUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	maxRedirects     = 5
	defaultPageChars = 20000
	maxPageBodyBytes = 5 << 20
	pageFetchTimeout = 30 * time.Second
)

// Page is the readable content of one source URL.
type Page struct {
	URL       string
	Title     string
	Text      string
	Extractor string // readability, json or raw
	Truncated bool
}

// PageReader fetches objective sources and extracts their readable text.
type PageReader struct {
	maxChars   int
	httpClient *http.Client
}

// NewPageReader creates a PageReader. maxChars defaults to 20000.
func NewPageReader(maxChars int) *PageReader {
	if maxChars <= 0 {
		maxChars = defaultPageChars
	}
	client := &http.Client{
		Timeout: pageFetchTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &PageReader{maxChars: maxChars, httpClient: client}
}

// Read fetches rawURL. HTML goes through readability and is rendered as
// light markdown; JSON is re-indented; anything else is returned as is.
func (r *PageReader) Read(ctx context.Context, rawURL string) (Page, error) {
	u, err := validateURL(rawURL)
	if err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", pageUserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read %s: %w", rawURL, err)
	}

	page := Page{URL: rawURL}
	ctype := resp.Header.Get("Content-Type")

	switch {
	case strings.Contains(ctype, "application/json"):
		var v any
		if json.Unmarshal(body, &v) == nil {
			formatted, _ := json.MarshalIndent(v, "", "  ")
			page.Text = string(formatted)
		} else {
			page.Text = string(body)
		}
		page.Extractor = "json"

	case strings.Contains(ctype, "text/html") || isHTMLPrefix(body):
		article, err := readability.FromReader(bytes.NewReader(body), u)
		if err == nil {
			page.Title = article.Title
			page.Text = htmlToMarkdown(article.Content)
		} else {
			page.Text = stripHTMLTags(string(body))
		}
		page.Extractor = "readability"

	default:
		page.Text = string(body)
		page.Extractor = "raw"
	}

	if len(page.Text) > r.maxChars {
		page.Text = page.Text[:r.maxChars]
		page.Truncated = true
	}
	return page, nil
}

// Markdown renders the page as a context block for a prompt.
func (p Page) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Source: %s\n", p.URL)
	if p.Title != "" {
		fmt.Fprintf(&sb, "# %s\n", p.Title)
	}
	sb.WriteString("\n")
	sb.WriteString(p.Text)
	if p.Truncated {
		sb.WriteString("\n\n(truncated)")
	}
	return sb.String()
}

// validateURL checks that rawURL is http(s) with a host.
func validateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("only http/https sources allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing domain in URL %q", rawURL)
	}
	return u, nil
}

func isHTMLPrefix(b []byte) bool {
	prefix := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}

var (
	reScript    = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle     = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTags      = regexp.MustCompile(`<[^>]+>`)
	reSpaces    = regexp.MustCompile(`[ \t]+`)
	reNewlines  = regexp.MustCompile(`\n{3,}`)
	reLinks     = regexp.MustCompile(`(?is)<a\s+[^>]*href=["']([^"']+)["'][^>]*>([\s\S]*?)</a>`)
	reHeadings  = regexp.MustCompile(`(?is)<h([1-6])[^>]*>([\s\S]*?)</h[1-6]>`)
	reListItems = regexp.MustCompile(`(?is)<li[^>]*>([\s\S]*?)</li>`)
	reBlockEnd  = regexp.MustCompile(`(?is)</(p|div|section|article)>`)
	reLineBreak = regexp.MustCompile(`(?is)<(br|hr)\s*/?>`)
)

// stripHTMLTags removes all HTML tags and normalizes whitespace.
func stripHTMLTags(text string) string {
	text = reScript.ReplaceAllString(text, "")
	text = reStyle.ReplaceAllString(text, "")
	text = reTags.ReplaceAllString(text, "")
	return normalizeWhitespace(text)
}

// htmlToMarkdown converts the common block elements to markdown.
func htmlToMarkdown(htmlText string) string {
	text := reLinks.ReplaceAllStringFunc(htmlText, func(m string) string {
		parts := reLinks.FindStringSubmatch(m)
		return fmt.Sprintf("[%s](%s)", stripHTMLTags(parts[2]), parts[1])
	})
	text = reHeadings.ReplaceAllStringFunc(text, func(m string) string {
		parts := reHeadings.FindStringSubmatch(m)
		level := int(parts[1][0] - '0')
		return fmt.Sprintf("\n%s %s\n", strings.Repeat("#", level), stripHTMLTags(parts[2]))
	})
	text = reListItems.ReplaceAllStringFunc(text, func(m string) string {
		return "\n- " + stripHTMLTags(reListItems.FindStringSubmatch(m)[1])
	})
	text = reBlockEnd.ReplaceAllString(text, "\n\n")
	text = reLineBreak.ReplaceAllString(text, "\n")
	return stripHTMLTags(text)
}

func normalizeWhitespace(text string) string {
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
