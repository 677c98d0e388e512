package downloader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create zip entry %s: %v", name, err)
		}
		f.Write([]byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestZipDownloaderAcquireIsIdempotent(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"imgs/ads/a.jpg": "img",
		"maps/ads/a.jpg": "map",
	})

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(archive)
	}))
	defer server.Close()

	root := t.TempDir()
	d := NewZipDownloader(server.URL + "/data/imp1k.zip")

	path, err := d.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if path != filepath.Join(root, "imp1k") {
		t.Errorf("Unexpected extract path %s", path)
	}
	if _, err := os.Stat(filepath.Join(path, "maps", "ads", "a.jpg")); err != nil {
		t.Errorf("Expected extracted map: %v", err)
	}

	again, err := d.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Unexpected error on second acquire: %v", err)
	}
	if again != path {
		t.Errorf("Second acquire returned %s, expected %s", again, path)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("Expected exactly 1 download, got %d", n)
	}
}

func TestZipDownloaderReusesArchiveOnDisk(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "maps.zip"), buildZip(t, map[string]string{"train/maps/x.png": "m"}), 0644)

	d := NewGoogleDriveDownloader("some-id", "maps.zip")
	d.URL = "http://127.0.0.1:1/unreachable"

	path, err := d.Acquire(context.Background(), root)
	if err != nil {
		t.Fatalf("Archive already on disk must not be downloaded: %v", err)
	}
	if filepath.Base(path) != "maps" {
		t.Errorf("Expected extraction into maps/, got %s", path)
	}
}

func TestZipDownloaderHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	root := t.TempDir()
	_, err := NewZipDownloader(server.URL+"/x.zip").Acquire(context.Background(), root)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Expected status error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "x.zip")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("Failed download must not leave an archive behind")
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	os.WriteFile(archive, buildZip(t, map[string]string{"../escape.txt": "x"}), 0644)

	err := Extract(archive, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Expected ErrUnsafePath, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "escape.txt")); statErr == nil {
		t.Error("Traversal entry was written outside the destination")
	}
}

func TestGoogleDriveURL(t *testing.T) {
	u := GoogleDriveURL("16RKP-gtu")
	if !strings.HasSuffix(u, "id=16RKP-gtu") || !strings.HasPrefix(u, "https://drive.google.com/") {
		t.Errorf("Unexpected drive URL %s", u)
	}
}

// closeFailingWriter buffers writes and fails on Close, like a file whose
// final flush is rejected
type closeFailingWriter struct {
	bytes.Buffer
	closed bool
}

func (w *closeFailingWriter) Close() error {
	w.closed = true
	return errors.New("flush failed")
}

func TestCopyAndCloseReportsCloseError(t *testing.T) {
	w := &closeFailingWriter{}
	err := copyAndClose(w, strings.NewReader("saliency"))
	if err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Fatalf("Expected close error, got %v", err)
	}
	if !w.closed {
		t.Error("Expected writer to be closed")
	}
	if w.String() != "saliency" {
		t.Errorf("Expected copied content, got %q", w.String())
	}
}

func TestExtractWritesCompleteFiles(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "data.zip")
	content := strings.Repeat("pixel", 4096)
	os.WriteFile(archive, buildZip(t, map[string]string{"images/a.jpg": content}), 0644)

	dest := filepath.Join(dir, "out")
	if err := Extract(archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "images", "a.jpg"))
	if err != nil {
		t.Fatalf("Failed to read extracted file: %v", err)
	}
	if string(got) != content {
		t.Errorf("Expected %d extracted bytes, got %d", len(content), len(got))
	}
}
