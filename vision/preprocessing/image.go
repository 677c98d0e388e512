package preprocessing

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/salmap/go-salmap/tensor"
)

// ColorMode selects the channel layout produced by decoding
type ColorMode int

const (
	// RGB decodes to a 3-channel CHW tensor
	RGB ColorMode = iota
	// Gray decodes to a 1-channel CHW tensor using luminance
	Gray
)

func (m ColorMode) String() string {
	switch m {
	case RGB:
		return "RGB"
	case Gray:
		return "Gray"
	default:
		return fmt.Sprintf("ColorMode(%d)", int(m))
	}
}

// Channels returns the number of tensor channels for the mode
func (m ColorMode) Channels() int {
	if m == Gray {
		return 1
	}
	return 3
}

// Decoder turns an image file into a pixel tensor
type Decoder interface {
	DecodeFile(path string, mode ColorMode) (*tensor.Tensor, error)
}

// FileDecoder decodes JPEG and PNG files from disk
type FileDecoder struct{}

// DecodeFile decodes path and returns CHW data normalized to [0, 1]
func (FileDecoder) DecodeFile(path string, mode ColorMode) (*tensor.Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return FromImage(img, mode)
}

// FromImage converts img into a CHW tensor normalized to [0, 1]
func FromImage(img image.Image, mode ColorMode) (*tensor.Tensor, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has empty bounds %v", bounds)
	}

	channels := mode.Channels()
	data := make([]float32, channels*width*height)
	plane := width * height

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			idx := y*width + x

			if mode == Gray {
				g := color.Gray16Model.Convert(c).(color.Gray16)
				data[idx] = float32(g.Y) / 65535.0
				continue
			}

			r, g, b, _ := c.RGBA()
			data[0*plane+idx] = float32(r) / 65535.0
			data[1*plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}

	return tensor.NewTensor([]int{channels, height, width}, data)
}

// ToImage converts a CHW tensor with 1 or 3 channels into a 16-bit image.
// Values are clamped to [0, 1].
func ToImage(t *tensor.Tensor) (image.Image, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("expected CHW tensor, got shape %v", t.Shape)
	}
	channels, height, width := t.Shape[0], t.Shape[1], t.Shape[2]
	plane := width * height
	rect := image.Rect(0, 0, width, height)

	switch channels {
	case 1:
		img := image.NewGray16(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: to16(t.Data[y*width+x])})
			}
		}
		return img, nil
	case 3:
		img := image.NewRGBA64(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				idx := y*width + x
				img.SetRGBA64(x, y, color.RGBA64{
					R: to16(t.Data[0*plane+idx]),
					G: to16(t.Data[1*plane+idx]),
					B: to16(t.Data[2*plane+idx]),
					A: 0xffff,
				})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
}

func to16(v float32) uint16 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v*65535.0 + 0.5)
}
