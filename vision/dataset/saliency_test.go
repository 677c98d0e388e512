package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// stubDownloader pretends an archive named name was extracted under root
type stubDownloader struct {
	name  string
	err   error
	calls int
}

func (s *stubDownloader) Acquire(ctx context.Context, root string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return filepath.Join(root, s.name), nil
}

func TestImp1kDataset(t *testing.T) {
	root := t.TempDir()
	extracted := filepath.Join(root, "imp1k")
	for _, cat := range Imp1kCategories {
		touch(t, filepath.Join(extracted, "imgs", cat), cat+"_1.jpg", cat+"_2.jpg")
		touch(t, filepath.Join(extracted, "maps", cat), cat+"_1.jpg", cat+"_2.jpg")
	}

	t.Run("DefaultCategories", func(t *testing.T) {
		dl := &stubDownloader{name: "imp1k"}
		ds, err := newImp1k(context.Background(), root, dl, Options{Decoder: fakeDecoder{}})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if ds.Len() != 8 {
			t.Errorf("Expected 8 pairs, got %d", ds.Len())
		}
		if dl.calls != 1 {
			t.Errorf("Expected 1 acquire call, got %d", dl.calls)
		}
		if !strings.Contains(ds.String(), "Imp1k: 8 pairs") {
			t.Errorf("Unexpected summary %q", ds.String())
		}
	})

	t.Run("SelectedCategory", func(t *testing.T) {
		ds, err := newImp1k(context.Background(), root, &stubDownloader{name: "imp1k"},
			Options{Categories: []string{Imp1kWebpages}, Decoder: fakeDecoder{}})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if ds.Len() != 2 {
			t.Fatalf("Expected 2 pairs, got %d", ds.Len())
		}
		input, target, err := ds.Get(1)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if input.Shape[0] != 3 || target.Shape[0] != 1 {
			t.Errorf("Unexpected shapes %v / %v", input.Shape, target.Shape)
		}
	})

	t.Run("AcquireError", func(t *testing.T) {
		want := errors.New("offline")
		_, err := newImp1k(context.Background(), root, &stubDownloader{err: want}, Options{})
		if !errors.Is(err, want) {
			t.Errorf("Expected acquire error, got %v", err)
		}
	})

	t.Run("GetOutOfRange", func(t *testing.T) {
		ds, err := newImp1k(context.Background(), root, &stubDownloader{name: "imp1k"}, Options{Decoder: fakeDecoder{}})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, _, err := ds.Get(ds.Len()); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Expected ErrIndexOutOfRange, got %v", err)
		}
	})
}

func TestSaliconDataset(t *testing.T) {
	base := t.TempDir()
	touch(t, filepath.Join(base, "images", "train", "images"), "1.jpg", "2.jpg", "3.jpg")
	touch(t, filepath.Join(base, "maps", "train", "maps"), "1.png", "2.png", "3.png")
	touch(t, filepath.Join(base, "images", "test", "images"), "7.jpg")
	touch(t, filepath.Join(base, "maps", "test", "maps"), "7.png")

	images := &stubDownloader{name: "images"}
	maps := &stubDownloader{name: "maps"}
	ds, err := newSalicon(context.Background(), base, images, maps, Options{Decoder: fakeDecoder{}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if ds.Len() != 4 {
		t.Errorf("Expected 4 pairs, got %d", ds.Len())
	}
	if images.calls != 1 || maps.calls != 1 {
		t.Errorf("Expected one acquire per archive, got %d and %d", images.calls, maps.calls)
	}
	if ds.Catalog().Dropped() != 0 {
		t.Errorf("Expected no dropped files, got %d", ds.Catalog().Dropped())
	}
}

func TestNewUnknownDataset(t *testing.T) {
	if _, err := New(context.Background(), "cifar", t.TempDir(), Options{}); err == nil {
		t.Error("Expected error for unknown dataset")
	}
}
