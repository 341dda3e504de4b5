// Package pagecache keeps fetched search pages on disk, lz4-compressed, so a
// page can be re-filtered with different settings without fetching it again.
package pagecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/lotas/hidenobids/internal/applog"
)

const ext = ".html.lz4"

// Cache stores page bodies keyed by URL. A zero maxAge disables it.
type Cache struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

// New returns a cache rooted at dir.
func New(dir string, maxAge time.Duration) *Cache {
	return &Cache{dir: dir, maxAge: maxAge, now: time.Now}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+ext)
}

func (c *Cache) expired(mod time.Time) bool {
	return c.now().Sub(mod) > c.maxAge
}

// Get returns the cached body for url. ok is false when there is no entry
// or it is older than maxAge.
func (c *Cache) Get(url string) (body []byte, ok bool, err error) {
	if c.maxAge == 0 {
		return nil, false, nil
	}
	path := c.path(url)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if c.expired(info.ModTime()) {
		return nil, false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	body, err = io.ReadAll(lz4.NewReader(f))
	if err != nil {
		return nil, false, fmt.Errorf("decompress %s: %w", path, err)
	}
	return body, true, nil
}

// Put stores body for url, replacing any previous entry.
func (c *Cache) Put(url string, body []byte) error {
	if c.maxAge == 0 {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress: %w", err)
	}

	path := c.path(url)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Prune removes expired entries and returns how many were deleted.
func (c *Cache) Prune() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if c.maxAge > 0 && !c.expired(info.ModTime()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			applog.Error("cache.prune", err, "file", e.Name())
			continue
		}
		removed++
	}
	return removed, nil
}
