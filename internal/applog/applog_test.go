package applog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFormatsEventAndPairs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })

	Error("coord.inject", errors.New("permission denied"), "tab", 12, "url", "https://www.ebay.com/sch/i.html")

	line := buf.String()
	for _, want := range []string{" ERROR coord.inject", `err="permission denied"`, "tab=12", "url=https://www.ebay.com/sch/i.html"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestNoOutputIsNoop(t *testing.T) {
	SetOutput(nil)
	Info("agent.report", "count", 3)
}

func TestQuoteTruncates(t *testing.T) {
	long := strings.Repeat("x", maxValueLen+10)
	got := quote(long)
	if !strings.HasSuffix(got, truncSuffix) {
		t.Errorf("quote did not truncate: %q", got)
	}
}

func TestInitRotatesLargeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), maxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(Close)

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	Info("coord.start")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "coord.start") {
		t.Errorf("log file = %q, want coord.start line", data)
	}
}
