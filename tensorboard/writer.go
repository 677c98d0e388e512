// Package tensorboard writes TensorBoard event files. A Writer is a
// training.Sink accepting both scalars and images.
package tensorboard

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/salmap/go-salmap/training"
)

// Writer appends events to a single event file
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	buf    *bufio.Writer
	now    func() time.Time
	closed bool
}

// NewWriter creates logDir if needed and opens a new event file in it named
// events.out.tfevents.{unix seconds}.{hostname}
func NewWriter(logDir string) (*Writer, error) {
	return newWriter(logDir, time.Now)
}

func newWriter(logDir string, now func() time.Time) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	path := filepath.Join(logDir, fmt.Sprintf("events.out.tfevents.%d.%s", now().Unix(), host))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event file: %w", err)
	}

	w := &Writer{path: path, file: file, buf: bufio.NewWriter(file), now: now}
	if err := w.write(&Event{FileVersion: FileVersion}); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the event file path
func (w *Writer) Path() string {
	return w.path
}

// Capabilities returns scalars and images
func (w *Writer) Capabilities() training.Capability {
	return training.CapScalars | training.CapImages
}

func (w *Writer) write(e *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("event writer %s is closed", w.path)
	}
	e.WallTime = float64(w.now().UnixNano()) / 1e9
	return writeRecord(w.buf, e.Marshal())
}

// AddScalar records a simple_value summary
func (w *Writer) AddScalar(tag string, value float64, step int) error {
	return w.write(&Event{
		Step:   int64(step),
		Values: []Value{{Tag: tag, Scalar: float32(value), HasScalar: true}},
	})
}

// AddImage records img as a PNG-encoded image summary
func (w *Writer) AddImage(tag string, img image.Image, step int) error {
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return fmt.Errorf("failed to encode image %s: %w", tag, err)
	}
	b := img.Bounds()
	return w.write(&Event{
		Step: int64(step),
		Values: []Value{{
			Tag: tag,
			Image: &Image{
				Height:     b.Dy(),
				Width:      b.Dx(),
				Colorspace: colorspace(img),
				Encoded:    encoded.Bytes(),
			},
		}},
	})
}

func colorspace(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return 4
	default:
		return 3
	}
}

// Flush writes buffered events to disk
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush event file: %w", err)
	}
	return w.file.Sync()
}

// Close flushes and closes the file. Further writes fail.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// ReadEvents decodes every event in r, verifying record checksums
func ReadEvents(r io.Reader) ([]*Event, error) {
	br := bufio.NewReader(r)
	var events []*Event
	for {
		data, err := readRecord(br)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		e, err := UnmarshalEvent(data)
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}

// ReadFile decodes every event in the file at path
func ReadFile(path string) ([]*Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadEvents(file)
}
