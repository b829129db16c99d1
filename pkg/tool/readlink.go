package tool

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	readLinkTimeout = 15 * time.Second
	maxPageRunes    = 10000
	// maxPageBytes bounds the download before tags are stripped
	maxPageBytes = 2 << 20
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Fetcher retrieves the text of a web page
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type httpFetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher backed by net/http
func NewFetcher() Fetcher {
	return &httpFetcher{
		client: &http.Client{Timeout: readLinkTimeout},
	}
}

func (x *httpFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create request", goerr.V("url", rawURL))
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to fetch link", goerr.V("url", rawURL))
	}
	defer resp.Body.Close()

	// error pages are not read as content
	if resp.StatusCode >= 400 {
		return "", goerr.New("link returned error status", goerr.V("url", rawURL), goerr.V("status", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read link body", goerr.V("url", rawURL))
	}

	return ExtractText(string(body)), nil
}

// ExtractText strips markup tags, collapses whitespace and truncates the result
func ExtractText(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")

	runes := []rune(text)
	if len(runes) > maxPageRunes {
		runes = runes[:maxPageRunes]
	}
	return string(runes)
}

var videoHosts = []string{"youtube.com", "youtu.be"}

// IsVideoLink reports whether the model can consume the URL natively
func IsVideoLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		lower := strings.ToLower(rawURL)
		for _, host := range videoHosts {
			if strings.Contains(lower, host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range videoHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
