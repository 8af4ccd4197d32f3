// Package labels holds the COCO class names and the per-class drawing palette.
package labels

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Table is an ordered list of class names indexed by class id.
type Table []string

// COCO contains the 80 COCO class names in model output order.
var COCO = Table{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// Lookup returns the class name for id. ok is false when id is outside the table.
func (t Table) Lookup(id int) (string, bool) {
	if id < 0 || id >= len(t) {
		return "", false
	}
	return t[id], true
}

// Len returns the number of classes.
func (t Table) Len() int {
	return len(t)
}

// Palette is an ordered list of colors cycled by class id.
type Palette []color.RGBA

// Ultralytics is the 20-color palette used by the Ultralytics tooling.
var Ultralytics = MustParsePalette(
	"#FF3838", "#FF9D97", "#FF701F", "#FFB21D", "#CFD231",
	"#48F90A", "#92CC17", "#3DDB86", "#1A9334", "#00D4BB",
	"#2C99A8", "#00C2FF", "#344593", "#6473FF", "#0018EC",
	"#8438FF", "#520085", "#CB38FF", "#FF95C8", "#FF37C7",
)

// ParsePalette converts "#RRGGBB" strings to opaque colors.
func ParsePalette(hex ...string) (Palette, error) {
	p := make(Palette, 0, len(hex))
	for _, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, err
		}
		r, g, b := c.RGB255()
		p = append(p, color.RGBA{R: r, G: g, B: b, A: 0xff})
	}
	return p, nil
}

// MustParsePalette is ParsePalette for package-level tables.
func MustParsePalette(hex ...string) Palette {
	p, err := ParsePalette(hex...)
	if err != nil {
		panic(err)
	}
	return p
}

// Color returns the palette entry for a class id. Negative ids wrap from the front.
func (p Palette) Color(id int) color.RGBA {
	if len(p) == 0 {
		return color.RGBA{A: 0xff}
	}
	i := id % len(p)
	if i < 0 {
		i += len(p)
	}
	return p[i]
}

// WithAlpha returns c with its alpha replaced, premultiplying the channels.
func WithAlpha(c color.RGBA, alpha float64) color.RGBA {
	a := alpha * 0xff
	return color.RGBA{
		R: uint8(float64(c.R) * alpha),
		G: uint8(float64(c.G) * alpha),
		B: uint8(float64(c.B) * alpha),
		A: uint8(a),
	}
}

// Hex formats c as "#RRGGBB".
func Hex(c color.RGBA) string {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hex()
}
