package detector

import (
	"fmt"

	"github.com/ayusman/detectcam/internal/labels"
)

// Box is an axis-aligned rectangle in source frame pixels.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is a classified box ready for rendering.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// ArgMax returns the index and value of the largest score. Ties go to the lowest index.
// An empty slice yields (-1, 0).
func ArgMax(scores []float32) (int, float32) {
	best := -1
	var bestScore float32
	for i, s := range scores {
		if best < 0 || s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best, bestScore
}

// Map converts a row from padded model space into a frame-space detection.
// scaleX and scaleY come from preprocess.Input.Scale.
func Map(row Row, scaleX, scaleY float64) Detection {
	classID, score := ArgMax(row.Scores)

	cx := float64(row.Box[0])
	cy := float64(row.Box[1])
	w := float64(row.Box[2])
	h := float64(row.Box[3])

	return Detection{
		ClassID:    classID,
		Confidence: float64(score),
		Box: Box{
			X: (cx - w/2) * scaleX,
			Y: (cy - h/2) * scaleY,
			W: w * scaleX,
			H: h * scaleY,
		},
	}
}

// MapAll maps rows in order and attaches class names from table.
// Rows whose class is not in table keep an empty Label; callers decide whether to drop them.
func MapAll(rows []Row, scaleX, scaleY float64, table labels.Table) []Detection {
	dets := make([]Detection, 0, len(rows))
	for _, row := range rows {
		d := Map(row, scaleX, scaleY)
		if name, ok := table.Lookup(d.ClassID); ok {
			d.Label = name
		}
		dets = append(dets, d)
	}
	return dets
}

// CheckClass returns ErrClassIndexOutOfRange when d references a class outside table.
func CheckClass(d Detection, table labels.Table) error {
	if _, ok := table.Lookup(d.ClassID); !ok {
		return fmt.Errorf("%w: %d (table has %d classes)", ErrClassIndexOutOfRange, d.ClassID, table.Len())
	}
	return nil
}

// Text returns the overlay caption, e.g. "person - 87.5%".
func (d Detection) Text() string {
	return fmt.Sprintf("%s - %.1f%%", d.Label, d.Confidence*100)
}
