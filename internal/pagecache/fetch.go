package pagecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lotas/hidenobids/internal/applog"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodySize = 10 << 20
)

var skipPrefixes = []string{"about:", "moz-extension:", "file:", "chrome:", "resource:", "data:"}

// Fetcher downloads pages through the cache.
type Fetcher struct {
	client *http.Client
	cache  *Cache
}

// NewFetcher returns a Fetcher with a 15 second timeout. cache may be nil.
func NewFetcher(cache *Cache) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  cache,
	}
}

// Fetch returns the page body for url, from the cache when fresh.
func (f *Fetcher) Fetch(ctx context.Context, url string) (body []byte, cached bool, err error) {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(url, prefix) {
			return nil, false, fmt.Errorf("skipping non-HTTP URL: %s", url)
		}
	}

	if f.cache != nil {
		body, ok, err := f.cache.Get(url)
		if err != nil {
			applog.Error("cache.get", err, "url", url)
		} else if ok {
			applog.Info("cache.hit", "url", url)
			return body, true, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", url, err)
	}

	if f.cache != nil {
		if err := f.cache.Put(url, body); err != nil {
			applog.Error("cache.put", err, "url", url)
		}
	}
	return body, false, nil
}
