package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Layout lists the image and saliency-map files of one category and defines
// the key two files must share to form a pair.
type Layout interface {
	List(category string) (images, maps []string, err error)
	Key(path string) string
}

// FlatLayout is the Imp1k arrangement:
//
//	root/imgs/{category}/*.jpg
//	root/maps/{category}/*.jpg
//
// Images and maps share file names, so the pairing key is the base name.
type FlatLayout struct {
	Root string
}

// List returns both listings sorted by path
func (l FlatLayout) List(category string) ([]string, []string, error) {
	images, err := sortedGlob(filepath.Join(l.Root, "imgs", category, "*.jpg"))
	if err != nil {
		return nil, nil, err
	}
	maps, err := sortedGlob(filepath.Join(l.Root, "maps", category, "*.jpg"))
	if err != nil {
		return nil, nil, err
	}
	return images, maps, nil
}

// Key returns the base file name
func (l FlatLayout) Key(path string) string {
	return filepath.Base(path)
}

// NestedLayout is the SALICON arrangement, where images and maps come from
// separate archives:
//
//	imageRoot/{category}/images/*.jpg
//	mapRoot/{category}/maps/*.png
//
// Map files are PNG while images are JPEG, so the pairing key is the base
// name without extension.
type NestedLayout struct {
	ImageRoot string
	MapRoot   string
}

// List returns both listings sorted by path
func (l NestedLayout) List(category string) ([]string, []string, error) {
	images, err := sortedGlob(filepath.Join(l.ImageRoot, category, "images", "*.jpg"))
	if err != nil {
		return nil, nil, err
	}
	maps, err := sortedGlob(filepath.Join(l.MapRoot, category, "maps", "*.png"))
	if err != nil {
		return nil, nil, err
	}
	return images, maps, nil
}

// Key returns the base file name without its extension
func (l NestedLayout) Key(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func sortedGlob(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", pattern, err)
	}
	sort.Strings(files)
	return files, nil
}
