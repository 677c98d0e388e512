// Package downloader fetches and unpacks dataset archives. Acquisition is
// idempotent: once an archive has been extracted, a completion marker makes
// later calls return immediately without touching the network.
package downloader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsafePath is returned when an archive entry would escape the extraction directory
var ErrUnsafePath = errors.New("archive entry escapes extraction directory")

const completeMarker = ".complete"

// Downloader guarantees that an extracted directory tree exists under root
type Downloader interface {
	Acquire(ctx context.Context, root string) (string, error)
}

// ZipDownloader downloads a zip archive over HTTP and extracts it to
// root/<Name>.
type ZipDownloader struct {
	URL      string
	Filename string // archive file name inside root; defaults to the URL's base name
	Name     string // extraction directory name; defaults to Filename without extension
	Client   *http.Client
}

// NewZipDownloader creates a downloader for a plain HTTP(S) zip URL
func NewZipDownloader(rawURL string) *ZipDownloader {
	return &ZipDownloader{
		URL:    rawURL,
		Client: &http.Client{Timeout: 30 * time.Minute},
	}
}

// GoogleDriveURL returns the direct-download URL for a shared Google Drive file
func GoogleDriveURL(fileID string) string {
	return "https://drive.google.com/uc?export=download&confirm=t&id=" + url.QueryEscape(fileID)
}

// NewGoogleDriveDownloader creates a downloader for a shared Google Drive
// archive. filename names the local archive, which has no name in the URL.
func NewGoogleDriveDownloader(fileID, filename string) *ZipDownloader {
	d := NewZipDownloader(GoogleDriveURL(fileID))
	d.Filename = filename
	return d
}

// ExtractPath returns the directory the archive is extracted into
func (d *ZipDownloader) ExtractPath(root string) string {
	return filepath.Join(root, d.name())
}

func (d *ZipDownloader) filename() string {
	if d.Filename != "" {
		return d.Filename
	}
	if u, err := url.Parse(d.URL); err == nil && u.Path != "" {
		return filepath.Base(u.Path)
	}
	return "archive.zip"
}

func (d *ZipDownloader) name() string {
	if d.Name != "" {
		return d.Name
	}
	f := d.filename()
	return strings.TrimSuffix(f, filepath.Ext(f))
}

// Acquire downloads and extracts the archive unless a previous call completed
func (d *ZipDownloader) Acquire(ctx context.Context, root string) (string, error) {
	extractPath := d.ExtractPath(root)
	if _, err := os.Stat(filepath.Join(extractPath, completeMarker)); err == nil {
		return extractPath, nil
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create root %s: %w", root, err)
	}

	archivePath := filepath.Join(root, d.filename())
	if _, err := os.Stat(archivePath); errors.Is(err, os.ErrNotExist) {
		if err := d.download(ctx, archivePath); err != nil {
			return "", err
		}
	}

	if err := Extract(archivePath, extractPath); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(extractPath, completeMarker), nil, 0644); err != nil {
		return "", fmt.Errorf("failed to write completion marker: %w", err)
	}
	return extractPath, nil
}

func (d *ZipDownloader) download(ctx context.Context, dest string) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "go-salmap")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", d.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s failed with status %d", d.URL, resp.StatusCode)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	return os.Rename(tmp, dest)
}

// Extract unpacks a zip archive into dest
func Extract(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	for _, f := range r.File {
		if err := extractFile(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.FromSlash(f.Name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: %w", f.Name, ErrUnsafePath)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if err := copyAndClose(out, src); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return nil
}

// copyAndClose copies src into out and closes out, reporting a failed close
func copyAndClose(out io.WriteCloser, src io.Reader) error {
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
