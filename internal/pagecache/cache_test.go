package pagecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const page = `<!DOCTYPE html><html><body><ul>
<li class="s-item"><span class="s-item__bidCount">0 bids</span></li>
</ul></body></html>`

func TestCacheRoundTrip(t *testing.T) {
	c := New(t.TempDir(), time.Hour)
	url := "https://www.ebay.com/sch/i.html?_nkw=lamp"

	if _, ok, err := c.Get(url); err != nil || ok {
		t.Fatalf("Get on empty cache = ok %v, err %v", ok, err)
	}
	if err := c.Put(url, []byte(page)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body, ok, err := c.Get(url)
	if err != nil || !ok {
		t.Fatalf("Get(%q) = ok %v, err %v", url, ok, err)
	}
	if string(body) != page {
		t.Errorf("body = %q, want original page", body)
	}
}

func TestCacheStoresCompressed(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)
	big := strings.Repeat(page, 200)
	if err := c.Put("https://www.ebay.de/sch/x", []byte(big)); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
	info, _ := entries[0].Info()
	if info.Size() >= int64(len(big)) {
		t.Errorf("entry is %d bytes, not smaller than %d", info.Size(), len(big))
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(t.TempDir(), time.Minute)
	url := "https://www.ebay.com/sch/old"
	if err := c.Put(url, []byte(page)); err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, ok, _ := c.Get(url); ok {
		t.Error("expired entry returned")
	}
	n, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
}

func TestCacheDisabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := New(dir, 0)
	if err := c.Put("https://www.ebay.com/sch/x", []byte(page)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("disabled cache wrote to disk")
	}
}

func TestFetchUsesCache(t *testing.T) {
	var hits atomic.Int32
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	f := NewFetcher(New(t.TempDir(), time.Hour))
	ctx := context.Background()

	body, cached, err := f.Fetch(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cached || string(body) != page {
		t.Errorf("first fetch: cached=%v body=%q", cached, body)
	}
	if ua, _ := gotUA.Load().(string); !strings.Contains(ua, "Mozilla") {
		t.Errorf("User-Agent = %q, want browser UA", ua)
	}

	body, cached, err = f.Fetch(ctx, srv.URL)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if !cached || string(body) != page {
		t.Errorf("second fetch: cached=%v body=%q", cached, body)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(nil)
	if _, _, err := f.Fetch(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Fetch = %v, want HTTP 404 error", err)
	}
}

func TestFetchSkipsNonHTTP(t *testing.T) {
	f := NewFetcher(nil)
	for _, u := range []string{"about:newtab", "file:///tmp/page.html", "data:text/html,hi"} {
		if _, _, err := f.Fetch(context.Background(), u); err == nil {
			t.Errorf("Fetch(%q) succeeded, want error", u)
		}
	}
}
