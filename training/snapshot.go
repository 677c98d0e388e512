package training

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/salmap/go-salmap/memory"
	"github.com/salmap/go-salmap/tensor"
)

// panelGap is the width in pixels of the separator between snapshot panels
const panelGap = 4

// ShouldEmit reports whether a snapshot fires for the given batch. Training
// snapshots fire on the last batch of the epoch; validation and test
// snapshots fire on the first.
func ShouldEmit(split Split, batchIdx int, isLast bool) bool {
	if split == SplitTrain {
		return isLast
	}
	return batchIdx == 0
}

// SnapshotTag returns the image tag for a split's snapshot at epoch
func SnapshotTag(split Split, epoch int) string {
	return fmt.Sprintf("%s_images_epoch_%d", split.Stage(), epoch)
}

// VisualizationTag returns the tag of the per-epoch visualization pass
func VisualizationTag(epoch int) string {
	return fmt.Sprintf("visualization_images_epoch_%d", epoch)
}

// SnapshotEmitter renders the first sample of a batch as an
// input | ground truth | prediction strip and sends it to image sinks
type SnapshotEmitter struct {
	sinks    []Sink
	pool     *memory.BufferPool
	colormap Colormap
}

// NewSnapshotEmitter creates an emitter. A nil pool uses the global pool and
// an empty colormap uses Inferno.
func NewSnapshotEmitter(sinks []Sink, pool *memory.BufferPool, cm Colormap) *SnapshotEmitter {
	if pool == nil {
		pool = memory.GlobalBufferPool()
	}
	if len(cm) == 0 {
		cm = Inferno
	}
	return &SnapshotEmitter{sinks: sinks, pool: pool, colormap: cm}
}

// MaybeEmit emits the split's snapshot when ShouldEmit fires. It returns
// whether the trigger fired.
func (e *SnapshotEmitter) MaybeEmit(split Split, epoch, batchIdx int, isLast bool, images, gts, preds *tensor.Tensor) (bool, error) {
	if !ShouldEmit(split, batchIdx, isLast) {
		return false, nil
	}
	return true, e.Emit(SnapshotTag(split, epoch), epoch, images, gts, preds)
}

// Emit renders the first sample of each batch and dispatches it under tag
func (e *SnapshotEmitter) Emit(tag string, step int, images, gts, preds *tensor.Tensor) error {
	if !e.hasImageSink() {
		return nil
	}

	scope := tensor.NewScope(e.pool)
	defer scope.Close()

	img, err := scope.DetachSample(images, 0)
	if err != nil {
		return fmt.Errorf("snapshot input: %w", err)
	}
	gt, err := scope.DetachSample(gts, 0)
	if err != nil {
		return fmt.Errorf("snapshot ground truth: %w", err)
	}
	pred, err := scope.DetachSample(preds, 0)
	if err != nil {
		return fmt.Errorf("snapshot prediction: %w", err)
	}

	strip, err := RenderTriptych(img, gt, pred, e.colormap)
	if err != nil {
		return err
	}
	return DispatchImage(e.sinks, tag, strip, step)
}

func (e *SnapshotEmitter) hasImageSink() bool {
	for _, s := range e.sinks {
		if s.Capabilities().Has(CapImages) {
			return true
		}
	}
	return false
}

// RenderTriptych lays out an input image and two saliency maps side by side.
// The input must be CHW with one or three channels; the maps must hold a
// single channel. Every panel is min-max normalized independently and the
// maps are coloured through cm.
func RenderTriptych(input, gt, pred *tensor.Tensor, cm Colormap) (*image.RGBA, error) {
	in, err := renderInput(input)
	if err != nil {
		return nil, fmt.Errorf("render input: %w", err)
	}
	g, err := renderMap(gt, cm)
	if err != nil {
		return nil, fmt.Errorf("render ground truth: %w", err)
	}
	p, err := renderMap(pred, cm)
	if err != nil {
		return nil, fmt.Errorf("render prediction: %w", err)
	}

	panels := []*image.RGBA{in, g, p}
	width, height := panelGap*(len(panels)-1), 0
	for _, panel := range panels {
		b := panel.Bounds()
		width += b.Dx()
		if b.Dy() > height {
			height = b.Dy()
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.RGBA{A: 255}}, image.Point{}, draw.Src)
	x := 0
	for _, panel := range panels {
		b := panel.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), b.Dy()), panel, b.Min, draw.Src)
		x += b.Dx() + panelGap
	}
	return out, nil
}

// chw returns channels, height and width of a CHW or HW tensor
func chw(t *tensor.Tensor) (int, int, int, error) {
	switch len(t.Shape) {
	case 3:
		return t.Shape[0], t.Shape[1], t.Shape[2], nil
	case 2:
		return 1, t.Shape[0], t.Shape[1], nil
	default:
		return 0, 0, 0, fmt.Errorf("expected CHW or HW, got %v: %w", t.Shape, ErrShapeMismatch)
	}
}

// normalizer maps [min, max] onto [0, 1]; a flat tensor maps to 0
func normalizer(t *tensor.Tensor) func(float32) float64 {
	lo, hi := t.MinMax()
	span := float64(hi - lo)
	if span <= 0 {
		return func(float32) float64 { return 0 }
	}
	return func(v float32) float64 { return float64(v-lo) / span }
}

func renderInput(t *tensor.Tensor) (*image.RGBA, error) {
	c, h, w, err := chw(t)
	if err != nil {
		return nil, err
	}
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("expected 1 or 3 channels, got %d: %w", c, ErrShapeMismatch)
	}

	norm := normalizer(t)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			var px [3]uint8
			for ch := 0; ch < 3; ch++ {
				src := ch
				if c == 1 {
					src = 0
				}
				px[ch] = uint8(norm(t.Data[src*plane+i])*255 + 0.5)
			}
			img.SetRGBA(x, y, color.RGBA{R: px[0], G: px[1], B: px[2], A: 255})
		}
	}
	return img, nil
}

func renderMap(t *tensor.Tensor, cm Colormap) (*image.RGBA, error) {
	c, h, w, err := chw(t)
	if err != nil {
		return nil, err
	}
	if c != 1 {
		return nil, fmt.Errorf("expected a single-channel map, got %d channels: %w", c, ErrShapeMismatch)
	}

	norm := normalizer(t)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, cm.At(norm(t.Data[y*w+x])))
		}
	}
	return img, nil
}
