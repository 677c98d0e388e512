package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata describes an exported saliency model. Shapes are fixed NCHW; the
// batch dimension is the largest batch one Forward call accepts.
type Metadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	InputName   string  `json:"input_name,omitempty"`
	OutputName  string  `json:"output_name,omitempty"`
	ImageSize   int     `json:"image_size"`
}

// LoadMetadata reads metadata JSON and applies default tensor names
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	return m, m.Validate()
}

// Validate checks that the model maps [N 3 H W] images to [N 1 H W] maps
func (m Metadata) Validate() error {
	if len(m.InputShape) != 4 || len(m.OutputShape) != 4 {
		return fmt.Errorf("expected 4-D input and output shapes, got %v and %v", m.InputShape, m.OutputShape)
	}
	for _, d := range append(append([]int64(nil), m.InputShape...), m.OutputShape...) {
		if d <= 0 {
			return fmt.Errorf("shape dimensions must be positive, got %v and %v", m.InputShape, m.OutputShape)
		}
	}
	if m.InputShape[1] != 3 {
		return fmt.Errorf("expected 3 input channels, got %d", m.InputShape[1])
	}
	if m.OutputShape[1] != 1 {
		return fmt.Errorf("expected a single output channel, got %d", m.OutputShape[1])
	}
	if m.InputShape[0] != m.OutputShape[0] || m.InputShape[2] != m.OutputShape[2] || m.InputShape[3] != m.OutputShape[3] {
		return fmt.Errorf("input %v and output %v disagree on batch or spatial size", m.InputShape, m.OutputShape)
	}
	return nil
}

// MaxBatch returns the fixed batch dimension
func (m Metadata) MaxBatch() int {
	return int(m.InputShape[0])
}

// checkInput validates a batch against the metadata and returns its size
func (m Metadata) checkInput(shape []int) (int, error) {
	if len(shape) != 4 {
		return 0, fmt.Errorf("expected NCHW input, got %v", shape)
	}
	if int64(shape[1]) != m.InputShape[1] || int64(shape[2]) != m.InputShape[2] || int64(shape[3]) != m.InputShape[3] {
		return 0, fmt.Errorf("input %v does not match model input %v", shape, m.InputShape)
	}
	if shape[0] < 1 || shape[0] > m.MaxBatch() {
		return 0, fmt.Errorf("batch of %d exceeds model batch %d", shape[0], m.MaxBatch())
	}
	return shape[0], nil
}
