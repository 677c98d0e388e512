package training

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/salmap/go-salmap/layers"
)

// ProgressBar provides PyTorch-style progress visualization
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	metrics     map[string]float64
}

// NewProgressBar creates a new progress bar writing to out, or stdout when nil.
// A total of zero or less renders an indeterminate bar.
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	if out == nil {
		out = os.Stdout
	}
	return &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       50,
		showRate:    true,
		showETA:     true,
		metrics:     make(map[string]float64),
	}
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	if pb.total > 0 {
		pb.current = pb.total
	}
	pb.render()
	fmt.Fprintln(pb.out)
}

// render draws the progress bar
func (pb *ProgressBar) render() {
	percentage := 0.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64
	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			eta = time.Duration(float64(elapsed)/percentage) - elapsed
		}
	}

	total := "?"
	if pb.total > 0 {
		total = fmt.Sprintf("%d", pb.total)
	}
	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%s", pb.description, percentage*100, bar, pb.current, total)

	if pb.showETA && eta > 0 {
		line += fmt.Sprintf(" [%s<%s", formatDuration(elapsed), formatDuration(eta))
	} else {
		line += fmt.Sprintf(" [%s<00:00", formatDuration(elapsed))
	}
	if pb.showRate && rate > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", rate)
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(", %s=%.4f", k, pb.metrics[k])
	}
	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// ModelArchitecturePrinter prints PyTorch-style model architecture
type ModelArchitecturePrinter struct {
	modelName string
	out       io.Writer
}

// NewModelArchitecturePrinter creates a printer writing to out, or stdout when nil
func NewModelArchitecturePrinter(out io.Writer, modelName string) *ModelArchitecturePrinter {
	if out == nil {
		out = os.Stdout
	}
	return &ModelArchitecturePrinter{modelName: modelName, out: out}
}

// PrintArchitecture prints the model architecture in PyTorch style
func (p *ModelArchitecturePrinter) PrintArchitecture(spec *layers.ModelSpec) {
	fmt.Fprintf(p.out, "Model Architecture:\n")
	fmt.Fprintf(p.out, "%s(\n", p.modelName)
	for _, layer := range spec.Layers {
		fmt.Fprintf(p.out, "  %s\n", p.formatLayer(layer))
	}
	fmt.Fprintf(p.out, ")\n\n")

	fmt.Fprintf(p.out, "Total parameters: %s\n", formatParameterCount(spec.TotalParameters))
	fmt.Fprintf(p.out, "Input size (MB): %.3f\n", calculateInputSize(spec.InputShape))
	fmt.Fprintf(p.out, "Params size (MB): %.3f\n\n", float64(spec.TotalParameters*4)/1024/1024)
}

func (p *ModelArchitecturePrinter) formatLayer(layer layers.LayerSpec) string {
	switch layer.Type {
	case layers.Conv2D:
		in := 0
		if len(layer.InputShape) > 0 {
			in = layer.InputShape[0]
		}
		return fmt.Sprintf("(%s): Conv2d(%d, %v, kernel_size=(1, 1), bias=%v)",
			layer.Name, in, layer.Parameters["output_channels"], layer.Parameters["use_bias"])
	case layers.LeakyReLU:
		return fmt.Sprintf("(%s): LeakyReLU(negative_slope=%v)", layer.Name, layer.Parameters["negative_slope"])
	default:
		return fmt.Sprintf("(%s): %s()", layer.Name, layer.Type.String())
	}
}

// formatParameterCount formats parameter count with K/M suffixes
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}

// calculateInputSize estimates input tensor size in MB
func calculateInputSize(inputShape []int) float64 {
	size := 1
	for _, dim := range inputShape {
		size *= dim
	}
	return float64(size*4) / 1024 / 1024
}
