package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// touch creates empty files named names inside dir
func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", dir, err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("mock"), 0644); err != nil {
			t.Fatalf("Failed to create file %s: %v", name, err)
		}
	}
}

func TestCatalogFlatLayout(t *testing.T) {
	t.Run("MismatchedKeyIsDropped", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "imgs", "ads"), "a.jpg", "b.jpg", "c.jpg")
		touch(t, filepath.Join(root, "maps", "ads"), "a.jpg", "X.jpg", "c.jpg")

		catalog := NewCatalog(FlatLayout{Root: root})
		if err := catalog.Build([]string{"ads"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		// Sorted map listing is X, a, c; positional pairs are (a,X) (b,a) (c,c)
		if catalog.Len() != 1 {
			t.Fatalf("Expected 1 pair, got %d", catalog.Len())
		}
		if catalog.Dropped() != 2 {
			t.Errorf("Expected 2 dropped, got %d", catalog.Dropped())
		}
		s, _ := catalog.Get(0)
		if filepath.Base(s.ImagePath) != "c.jpg" || filepath.Base(s.MapPath) != "c.jpg" {
			t.Errorf("Expected (c.jpg, c.jpg), got (%s, %s)", s.ImagePath, s.MapPath)
		}
	})

	t.Run("MiddleMismatch", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "imgs", "ads"), "a.jpg", "b.jpg", "c.jpg")
		touch(t, filepath.Join(root, "maps", "ads"), "a.jpg", "bx.jpg", "c.jpg")

		catalog := NewCatalog(FlatLayout{Root: root})
		if err := catalog.Build([]string{"ads"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if catalog.Len() != 2 {
			t.Fatalf("Expected 2 pairs, got %d", catalog.Len())
		}
		if catalog.Dropped() != 1 {
			t.Errorf("Expected 1 dropped, got %d", catalog.Dropped())
		}
		for i, want := range []string{"a.jpg", "c.jpg"} {
			s, err := catalog.Get(i)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if filepath.Base(s.ImagePath) != want || filepath.Base(s.MapPath) != want {
				t.Errorf("Pair %d: expected %s, got (%s, %s)", i, want, s.ImagePath, s.MapPath)
			}
		}
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "imgs", "ads"), "a.jpg", "b.jpg", "c.jpg")
		touch(t, filepath.Join(root, "maps", "ads"), "a.jpg", "b.jpg")

		catalog := NewCatalog(FlatLayout{Root: root})
		if err := catalog.Build([]string{"ads"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if catalog.Len() != 2 {
			t.Errorf("Expected 2 pairs, got %d", catalog.Len())
		}
		if catalog.Dropped() != 1 {
			t.Errorf("Expected 1 dropped, got %d", catalog.Dropped())
		}
	})

	t.Run("CategoriesInOrder", func(t *testing.T) {
		root := t.TempDir()
		touch(t, filepath.Join(root, "imgs", "webpages"), "w1.jpg", "w2.jpg")
		touch(t, filepath.Join(root, "maps", "webpages"), "w1.jpg", "w2.jpg")
		touch(t, filepath.Join(root, "imgs", "ads"), "a1.jpg")
		touch(t, filepath.Join(root, "maps", "ads"), "a1.jpg")

		catalog := NewCatalog(FlatLayout{Root: root})
		if err := catalog.Build([]string{"webpages", "ads"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		samples := catalog.Samples()
		if len(samples) != 3 {
			t.Fatalf("Expected 3 pairs, got %d", len(samples))
		}
		want := []string{"w1.jpg", "w2.jpg", "a1.jpg"}
		for i, s := range samples {
			if filepath.Base(s.ImagePath) != want[i] {
				t.Errorf("Sample %d: expected %s, got %s", i, want[i], filepath.Base(s.ImagePath))
			}
		}
	})

	t.Run("MissingCategoryIsEmpty", func(t *testing.T) {
		catalog := NewCatalog(FlatLayout{Root: t.TempDir()})
		if err := catalog.Build([]string{"ads"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if catalog.Len() != 0 {
			t.Errorf("Expected empty catalog, got %d", catalog.Len())
		}
	})
}

func TestCatalogNestedLayout(t *testing.T) {
	root := t.TempDir()
	imageRoot := filepath.Join(root, "images")
	mapRoot := filepath.Join(root, "maps")
	touch(t, filepath.Join(imageRoot, "train", "images"), "COCO_1.jpg", "COCO_2.jpg")
	touch(t, filepath.Join(mapRoot, "train", "maps"), "COCO_1.png", "COCO_2.png")
	touch(t, filepath.Join(imageRoot, "test", "images"), "COCO_9.jpg")
	touch(t, filepath.Join(mapRoot, "test", "maps"), "COCO_9.png")

	catalog := NewCatalog(NestedLayout{ImageRoot: imageRoot, MapRoot: mapRoot})
	if err := catalog.Build(SaliconCategories); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if catalog.Len() != 3 {
		t.Fatalf("Expected 3 pairs, got %d", catalog.Len())
	}
	if catalog.Dropped() != 0 {
		t.Errorf("Expected 0 dropped, got %d", catalog.Dropped())
	}

	first, _ := catalog.Get(0)
	if filepath.Base(first.ImagePath) != "COCO_9.jpg" || filepath.Base(first.MapPath) != "COCO_9.png" {
		t.Errorf("Expected test split first, got (%s, %s)", first.ImagePath, first.MapPath)
	}
}

func TestCatalogBuildIsIdempotent(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "imgs", "ads"), "a.jpg")
	touch(t, filepath.Join(root, "maps", "ads"), "a.jpg")

	catalog := NewCatalog(FlatLayout{Root: root})
	if catalog.Built() {
		t.Fatal("Expected catalog to start unbuilt")
	}
	if err := catalog.Build([]string{"ads"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// New files after the first build must not change the catalog
	touch(t, filepath.Join(root, "imgs", "ads"), "b.jpg")
	touch(t, filepath.Join(root, "maps", "ads"), "b.jpg")
	if err := catalog.Build([]string{"ads"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !catalog.Built() {
		t.Error("Expected catalog to be built")
	}
	if catalog.Len() != 1 {
		t.Errorf("Expected 1 pair after rebuild, got %d", catalog.Len())
	}
}

func TestCatalogGetOutOfRange(t *testing.T) {
	catalog := NewCatalog(FlatLayout{Root: t.TempDir()})
	if err := catalog.Build(nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, idx := range []int{-1, 0, 5} {
		_, err := catalog.Get(idx)
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Get(%d): expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
}

func TestLayoutKeys(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		a, b   string
		same   bool
	}{
		{"FlatSameName", FlatLayout{}, "/x/imgs/ads/1.jpg", "/x/maps/ads/1.jpg", true},
		{"FlatDifferentExt", FlatLayout{}, "/x/imgs/ads/1.jpg", "/x/maps/ads/1.png", false},
		{"NestedStem", NestedLayout{}, "/i/train/images/1.jpg", "/m/train/maps/1.png", true},
		{"NestedDifferentStem", NestedLayout{}, "/i/train/images/1.jpg", "/m/train/maps/2.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.layout.Key(tt.a) == tt.layout.Key(tt.b)
			if got != tt.same {
				t.Errorf("Expected same=%v for %s / %s", tt.same, tt.a, tt.b)
			}
		})
	}
}
