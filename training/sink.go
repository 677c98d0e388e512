package training

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// Capability is a bit set of artifact kinds a Sink accepts
type Capability uint8

const (
	CapScalars Capability = 1 << iota
	CapImages
)

// Has reports whether every bit of other is set
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapScalars) {
		parts = append(parts, "scalars")
	}
	if c.Has(CapImages) {
		parts = append(parts, "images")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ErrUnsupportedArtifact is returned by a sink asked to record an artifact
// kind it does not declare
var ErrUnsupportedArtifact = errors.New("sink does not support this artifact")

// Sink receives run artifacts. Callers dispatch by Capabilities and never
// inspect concrete sink types.
type Sink interface {
	Capabilities() Capability
	AddScalar(tag string, value float64, step int) error
	AddImage(tag string, img image.Image, step int) error
	Flush() error
	Close() error
}

// DispatchImage sends img to every image-capable sink and joins their errors
func DispatchImage(sinks []Sink, tag string, img image.Image, step int) error {
	var errs []error
	for _, s := range sinks {
		if !s.Capabilities().Has(CapImages) {
			continue
		}
		if err := s.AddImage(tag, img, step); err != nil {
			errs = append(errs, fmt.Errorf("image %s: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}

// DispatchScalars sends every value to every scalar-capable sink, in the
// order of tags
func DispatchScalars(sinks []Sink, tags []string, values map[string]float64, step int) error {
	var errs []error
	for _, s := range sinks {
		if !s.Capabilities().Has(CapScalars) {
			continue
		}
		for _, tag := range tags {
			if err := s.AddScalar(tag, values[tag], step); err != nil {
				errs = append(errs, fmt.Errorf("scalar %s: %w", tag, err))
			}
		}
	}
	return errors.Join(errs...)
}

// FlushAll flushes every sink and joins their errors
func FlushAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseAll closes every sink and joins their errors
func CloseAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PNGDirSink writes each image to {Dir}/{tag}.png
type PNGDirSink struct {
	Dir string
}

// NewPNGDirSink creates dir if needed
func NewPNGDirSink(dir string) (*PNGDirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &PNGDirSink{Dir: dir}, nil
}

// Capabilities returns CapImages
func (s *PNGDirSink) Capabilities() Capability { return CapImages }

// AddScalar is not supported
func (s *PNGDirSink) AddScalar(string, float64, int) error { return ErrUnsupportedArtifact }

// AddImage encodes img as PNG
func (s *PNGDirSink) AddImage(tag string, img image.Image, step int) error {
	path := filepath.Join(s.Dir, sanitizeTag(tag)+".png")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// Flush is a no-op; every image is written synchronously
func (s *PNGDirSink) Flush() error { return nil }

// Close is a no-op
func (s *PNGDirSink) Close() error { return nil }

func sanitizeTag(tag string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, tag)
}
