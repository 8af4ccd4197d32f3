// Package render draws detections onto a 2D surface.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ayusman/detectcam/internal/detector"
	"github.com/ayusman/detectcam/internal/labels"
)

const (
	fillAlpha    = 0.2
	minLineWidth = 2.5
	minFontSize  = 14
	labelPadding = 4
)

var regular *truetype.Font

func init() {
	var err error
	regular, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Renderer draws boxes and captions in per-class colors.
type Renderer struct {
	table   labels.Table
	palette labels.Palette
	logger  *zap.Logger
}

// New returns a Renderer for the given label table and palette.
func New(table labels.Table, palette labels.Palette, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{table: table, palette: palette, logger: logger}
}

// LineWidth is the border width for a surface of the given size.
func LineWidth(width, height int) float64 {
	return math.Max(math.Floor(float64(min(width, height))/200), minLineWidth)
}

// FontSize is the caption size in pixels for a surface of the given size.
func FontSize(width, height int) float64 {
	return math.Max(math.Round(float64(max(width, height))/40), minFontSize)
}

// Render clears dc to transparent and draws dets in order. Detections whose class is
// not in the label table are skipped with a warning. It returns how many were drawn.
func (r *Renderer) Render(dc *gg.Context, dets []detector.Detection) int {
	dc.SetColor(color.Transparent)
	dc.Clear()

	if len(dets) == 0 {
		return 0
	}

	w, h := dc.Width(), dc.Height()
	lineWidth := LineWidth(w, h)
	dc.SetFontFace(truetype.NewFace(regular, &truetype.Options{Size: FontSize(w, h)}))

	drawn := 0
	for _, d := range dets {
		name, ok := r.table.Lookup(d.ClassID)
		if !ok {
			r.logger.Warn("skipping detection with unknown class",
				zap.Int("class_id", d.ClassID),
				zap.Int("classes", r.table.Len()),
			)
			continue
		}
		d.Label = name
		r.drawOne(dc, d, lineWidth)
		drawn++
	}
	return drawn
}

func (r *Renderer) drawOne(dc *gg.Context, d detector.Detection, lineWidth float64) {
	c := r.palette.Color(d.ClassID)
	b := d.Box

	dc.SetColor(labels.WithAlpha(c, fillAlpha))
	dc.DrawRectangle(b.X, b.Y, b.W, b.H)
	dc.Fill()

	dc.SetColor(c)
	dc.SetLineWidth(lineWidth)
	dc.DrawRectangle(b.X, b.Y, b.W, b.H)
	dc.Stroke()

	text := d.Text()
	tw, th := dc.MeasureString(text)
	lw, lh := tw+2*labelPadding, th+2*labelPadding
	x, y := LabelOrigin(b, lw, lh, dc.Width(), dc.Height())

	dc.SetColor(c)
	dc.DrawRectangle(x, y, lw, lh)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(text, x+labelPadding, y+lh/2, 0, 0.35)
}

// LabelOrigin places a caption of size lw×lh just above box, or just inside it when
// the box touches the top edge, clamped to a surface of width×height.
func LabelOrigin(box detector.Box, lw, lh float64, width, height int) (x, y float64) {
	x = box.X
	y = box.Y - lh
	if y < 0 {
		y = math.Max(box.Y, 0)
	}
	x = clamp(x, 0, float64(width)-lw)
	y = clamp(y, 0, float64(height)-lh)
	return x, y
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// Overlay renders dets on a new transparent surface of the given size.
func (r *Renderer) Overlay(width, height int, dets []detector.Detection) *image.RGBA {
	dc := gg.NewContext(width, height)
	r.Render(dc, dets)
	return dc.Image().(*image.RGBA)
}

// Annotate returns a copy of frame with dets drawn over it.
func (r *Renderer) Annotate(frame image.Image, dets []detector.Detection) *image.RGBA {
	bounds := frame.Bounds()
	overlay := r.Overlay(bounds.Dx(), bounds.Dy(), dets)
	return Compose(frame, overlay)
}

// Compose draws overlay over frame into a new image with frame's bounds.
func Compose(frame, overlay image.Image) *image.RGBA {
	bounds := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), frame, bounds.Min, draw.Src)
	draw.Draw(out, out.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
	return out
}
