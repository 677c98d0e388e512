package training

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// recordingSink captures every artifact it is given
type recordingSink struct {
	caps    Capability
	scalars []scalarRecord
	images  []imageRecord
	flushes int
	err     error
}

type scalarRecord struct {
	tag   string
	value float64
	step  int
}

type imageRecord struct {
	tag  string
	img  image.Image
	step int
}

func (s *recordingSink) Capabilities() Capability { return s.caps }

func (s *recordingSink) AddScalar(tag string, value float64, step int) error {
	if !s.caps.Has(CapScalars) {
		return ErrUnsupportedArtifact
	}
	s.scalars = append(s.scalars, scalarRecord{tag, value, step})
	return s.err
}

func (s *recordingSink) AddImage(tag string, img image.Image, step int) error {
	if !s.caps.Has(CapImages) {
		return ErrUnsupportedArtifact
	}
	s.images = append(s.images, imageRecord{tag, img, step})
	return s.err
}

func (s *recordingSink) Flush() error {
	s.flushes++
	return nil
}

func (s *recordingSink) Close() error { return nil }

func TestCapability(t *testing.T) {
	both := CapScalars | CapImages
	if !both.Has(CapImages) || !both.Has(CapScalars) || !both.Has(both) {
		t.Error("Expected combined capability to include both bits")
	}
	if CapScalars.Has(CapImages) {
		t.Error("Scalar capability should not include images")
	}
	if both.String() != "scalars|images" {
		t.Errorf("Expected scalars|images, got %s", both.String())
	}
	if Capability(0).String() != "none" {
		t.Errorf("Expected none, got %s", Capability(0).String())
	}
}

func TestDispatchRespectsCapabilities(t *testing.T) {
	scalars := &recordingSink{caps: CapScalars}
	images := &recordingSink{caps: CapImages}
	sinks := []Sink{scalars, images}

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := DispatchImage(sinks, "tag", img, 3); err != nil {
		t.Fatalf("DispatchImage failed: %v", err)
	}
	tags := []string{"train_loss", "val_loss"}
	if err := DispatchScalars(sinks, tags, map[string]float64{"train_loss": 1, "val_loss": 2}, 3); err != nil {
		t.Fatalf("DispatchScalars failed: %v", err)
	}

	if len(images.images) != 1 || len(images.scalars) != 0 {
		t.Errorf("Image sink got %d images and %d scalars", len(images.images), len(images.scalars))
	}
	if len(scalars.scalars) != 2 || len(scalars.images) != 0 {
		t.Errorf("Scalar sink got %d scalars and %d images", len(scalars.scalars), len(scalars.images))
	}
	if scalars.scalars[0].tag != "train_loss" || scalars.scalars[1].value != 2 {
		t.Errorf("Unexpected scalar records %+v", scalars.scalars)
	}
}

func TestDispatchJoinsErrors(t *testing.T) {
	boom := errors.New("disk full")
	a := &recordingSink{caps: CapImages, err: boom}
	b := &recordingSink{caps: CapImages}

	err := DispatchImage([]Sink{a, b}, "tag", image.NewRGBA(image.Rect(0, 0, 1, 1)), 0)
	if !errors.Is(err, boom) {
		t.Errorf("Expected joined error to wrap %v, got %v", boom, err)
	}
	if len(b.images) != 1 {
		t.Error("Expected the healthy sink to still receive the image")
	}
}

func TestPNGDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	sink, err := NewPNGDirSink(dir)
	if err != nil {
		t.Fatalf("NewPNGDirSink failed: %v", err)
	}

	if err := sink.AddScalar("loss", 1, 0); !errors.Is(err, ErrUnsupportedArtifact) {
		t.Errorf("Expected ErrUnsupportedArtifact, got %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	if err := sink.AddImage("validation_images_epoch_0", img, 0); err != nil {
		t.Fatalf("AddImage failed: %v", err)
	}

	file, err := os.Open(filepath.Join(dir, "validation_images_epoch_0.png"))
	if err != nil {
		t.Fatalf("Expected PNG file: %v", err)
	}
	defer file.Close()
	decoded, err := png.Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 3 || decoded.Bounds().Dy() != 2 {
		t.Errorf("Expected 3x2 image, got %v", decoded.Bounds())
	}
}
