package frame

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedFormat is returned when planes cannot be laid out for a format
var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// Format is a FOURCC pixel format tag
type Format uint32

const (
	FormatNone Format = 0
	// FormatYV12 is planar 4:2:0: Y, then Cb, then Cr at half resolution
	FormatYV12 Format = 'Y' | 'V'<<8 | '1'<<16 | '2'<<24
	// FormatYUY2 is packed 4:2:2: Y0 Cb Y1 Cr
	FormatYUY2 Format = 'Y' | 'U'<<8 | 'Y'<<16 | '2'<<24
	// FormatRGBA is packed 8-bit RGBA
	FormatRGBA Format = 'R' | 'G'<<8 | 'B'<<16 | 'A'<<24
)

// String returns the FOURCC as text
func (f Format) String() string {
	if f == FormatNone {
		return "none"
	}
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// ParseFormat maps a config name to a Format
func ParseFormat(name string) (Format, error) {
	switch name {
	case "yv12", "YV12", "i420", "I420":
		return FormatYV12, nil
	case "yuy2", "YUY2":
		return FormatYUY2, nil
	case "rgba", "RGBA", "rgb32":
		return FormatRGBA, nil
	}
	return FormatNone, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Flags carries interlacing information plus acquire-time options
type Flags uint32

const (
	FlagTopFieldFirst Flags = 1 << iota
	FlagBottomFieldFirst
	FlagProgressive
	FlagRepeatFirstField
	// FlagMayFail makes Acquire return ErrNoFrame instead of retrying when
	// the output device cannot allocate a surface. It is never stored on a frame.
	FlagMayFail
)

// FieldMask selects the flags that describe picture structure
const FieldMask = FlagTopFieldFirst | FlagBottomFieldFirst | FlagProgressive | FlagRepeatFirstField

// NoPTS marks a frame whose decoder did not supply a timestamp
const NoPTS int64 = math.MinInt64

// Crop holds margins in pixels
type Crop struct {
	Left   int `json:"left"`
	Right  int `json:"right"`
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

// Add returns the sum of two crop margins
func (c Crop) Add(o Crop) Crop {
	return Crop{Left: c.Left + o.Left, Right: c.Right + o.Right, Top: c.Top + o.Top, Bottom: c.Bottom + o.Bottom}
}

// Params is what a decoder asks for when acquiring a frame
type Params struct {
	Width  int
	Height int
	Ratio  float64
	Format Format
	Flags  Flags
}

// planeLayout returns per-plane pitch and row count for a format
func planeLayout(width, height int, format Format) (pitches [3]int, rows [3]int, err error) {
	if width <= 0 || height <= 0 {
		return pitches, rows, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	switch format {
	case FormatYV12:
		cw, ch := (width+1)/2, (height+1)/2
		pitches = [3]int{width, cw, cw}
		rows = [3]int{height, ch, ch}
	case FormatYUY2:
		pitches[0] = ((width + 1) &^ 1) * 2
		rows[0] = height
	case FormatRGBA:
		pitches[0] = width * 4
		rows[0] = height
	default:
		return pitches, rows, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return pitches, rows, nil
}

// PlaneCount returns how many planes a format uses
func PlaneCount(format Format) int {
	if format == FormatYV12 {
		return 3
	}
	return 1
}
