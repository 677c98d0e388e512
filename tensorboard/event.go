package tensorboard

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the tensorflow Event, Summary, Summary.Value and
// Summary.Image messages
const (
	eventWallTime    protowire.Number = 1
	eventStep        protowire.Number = 2
	eventFileVersion protowire.Number = 3
	eventSummary     protowire.Number = 5

	summaryValue protowire.Number = 1

	valueTag         protowire.Number = 1
	valueSimpleValue protowire.Number = 2
	valueImage       protowire.Number = 4

	imageHeight     protowire.Number = 1
	imageWidth      protowire.Number = 2
	imageColorspace protowire.Number = 3
	imageEncoded    protowire.Number = 4
)

// FileVersion is written in the first event of every file
const FileVersion = "brain.Event:2"

// Image is an encoded summary image
type Image struct {
	Height     int
	Width      int
	Colorspace int // 1 gray, 3 RGB, 4 RGBA
	Encoded    []byte
}

// Value is one tagged summary entry. Exactly one of Scalar or Image is meaningful.
type Value struct {
	Tag       string
	Scalar    float32
	HasScalar bool
	Image     *Image
}

// Event is one record of an event file
type Event struct {
	WallTime    float64
	Step        int64
	FileVersion string
	Values      []Value
}

// Marshal encodes the event in protobuf wire format
func (e *Event) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, eventWallTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(e.WallTime))
	if e.Step != 0 {
		b = protowire.AppendTag(b, eventStep, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Step))
	}
	if e.FileVersion != "" {
		b = protowire.AppendTag(b, eventFileVersion, protowire.BytesType)
		b = protowire.AppendString(b, e.FileVersion)
	}
	if len(e.Values) > 0 {
		var summary []byte
		for _, v := range e.Values {
			summary = protowire.AppendTag(summary, summaryValue, protowire.BytesType)
			summary = protowire.AppendBytes(summary, v.marshal())
		}
		b = protowire.AppendTag(b, eventSummary, protowire.BytesType)
		b = protowire.AppendBytes(b, summary)
	}
	return b
}

func (v *Value) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, valueTag, protowire.BytesType)
	b = protowire.AppendString(b, v.Tag)
	if v.HasScalar {
		b = protowire.AppendTag(b, valueSimpleValue, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(v.Scalar))
	}
	if v.Image != nil {
		var img []byte
		img = protowire.AppendTag(img, imageHeight, protowire.VarintType)
		img = protowire.AppendVarint(img, uint64(v.Image.Height))
		img = protowire.AppendTag(img, imageWidth, protowire.VarintType)
		img = protowire.AppendVarint(img, uint64(v.Image.Width))
		img = protowire.AppendTag(img, imageColorspace, protowire.VarintType)
		img = protowire.AppendVarint(img, uint64(v.Image.Colorspace))
		img = protowire.AppendTag(img, imageEncoded, protowire.BytesType)
		img = protowire.AppendBytes(img, v.Image.Encoded)

		b = protowire.AppendTag(b, valueImage, protowire.BytesType)
		b = protowire.AppendBytes(b, img)
	}
	return b
}

// fields walks the fields of a message, calling fn with each number, type and
// raw value. Unknown fields are skipped.
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		if err := fn(num, typ, b[:m]); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func consumeBytes(raw []byte) ([]byte, error) {
	v, n := protowire.ConsumeBytes(raw)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return v, nil
}

func consumeVarint(raw []byte) (uint64, error) {
	v, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return v, nil
}

// UnmarshalEvent decodes an event record
func UnmarshalEvent(b []byte) (*Event, error) {
	e := &Event{}
	err := fields(b, func(num protowire.Number, typ protowire.Type, raw []byte) error {
		switch {
		case num == eventWallTime && typ == protowire.Fixed64Type:
			v, _ := protowire.ConsumeFixed64(raw)
			e.WallTime = math.Float64frombits(v)
		case num == eventStep && typ == protowire.VarintType:
			v, err := consumeVarint(raw)
			if err != nil {
				return err
			}
			e.Step = int64(v)
		case num == eventFileVersion && typ == protowire.BytesType:
			v, err := consumeBytes(raw)
			if err != nil {
				return err
			}
			e.FileVersion = string(v)
		case num == eventSummary && typ == protowire.BytesType:
			summary, err := consumeBytes(raw)
			if err != nil {
				return err
			}
			return fields(summary, func(num protowire.Number, typ protowire.Type, raw []byte) error {
				if num != summaryValue || typ != protowire.BytesType {
					return nil
				}
				vb, err := consumeBytes(raw)
				if err != nil {
					return err
				}
				v, err := unmarshalValue(vb)
				if err != nil {
					return err
				}
				e.Values = append(e.Values, v)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}

func unmarshalValue(b []byte) (Value, error) {
	var v Value
	err := fields(b, func(num protowire.Number, typ protowire.Type, raw []byte) error {
		switch {
		case num == valueTag && typ == protowire.BytesType:
			tag, err := consumeBytes(raw)
			if err != nil {
				return err
			}
			v.Tag = string(tag)
		case num == valueSimpleValue && typ == protowire.Fixed32Type:
			bits, _ := protowire.ConsumeFixed32(raw)
			v.Scalar = math.Float32frombits(bits)
			v.HasScalar = true
		case num == valueImage && typ == protowire.BytesType:
			ib, err := consumeBytes(raw)
			if err != nil {
				return err
			}
			img, err := unmarshalImage(ib)
			if err != nil {
				return err
			}
			v.Image = img
		}
		return nil
	})
	return v, err
}

func unmarshalImage(b []byte) (*Image, error) {
	img := &Image{}
	err := fields(b, func(num protowire.Number, typ protowire.Type, raw []byte) error {
		if num == imageEncoded && typ == protowire.BytesType {
			enc, err := consumeBytes(raw)
			if err != nil {
				return err
			}
			img.Encoded = append([]byte(nil), enc...)
			return nil
		}
		if typ != protowire.VarintType {
			return nil
		}
		v, err := consumeVarint(raw)
		if err != nil {
			return err
		}
		switch num {
		case imageHeight:
			img.Height = int(v)
		case imageWidth:
			img.Width = int(v)
		case imageColorspace:
			img.Colorspace = int(v)
		}
		return nil
	})
	return img, err
}
