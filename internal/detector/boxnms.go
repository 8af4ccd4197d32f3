package detector

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/ayusman/detectcam/internal/config"
)

// BoxSuppressor selects rows from raw detector output with gocv.NMSBoxes.
// It stands in for the exported NMS graph when only the detector graph is deployed.
type BoxSuppressor struct{}

// NewBoxSuppressor returns an OpenCV-backed Suppressor.
func NewBoxSuppressor() *BoxSuppressor {
	return &BoxSuppressor{}
}

// Select reads the [1, 4+classes, anchors] tensor, drops anchors whose best class
// score is below th.Score, runs greedy NMS at th.IoU and keeps the top th.TopK rows.
func (b *BoxSuppressor) Select(raw Tensor, th config.Thresholds) ([]Row, error) {
	candidates, err := Candidates(raw, float32(th.Score))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		rects[i] = c.rect()
		_, scores[i] = ArgMax(c.Scores)
	}

	keep := gocv.NMSBoxes(rects, scores, float32(th.Score), float32(th.IoU))

	sort.SliceStable(keep, func(i, j int) bool {
		return scores[keep[i]] > scores[keep[j]]
	})
	if th.TopK > 0 && len(keep) > th.TopK {
		keep = keep[:th.TopK]
	}

	rows := make([]Row, 0, len(keep))
	for _, idx := range keep {
		rows = append(rows, candidates[idx])
	}
	return rows, nil
}

// Close is a no-op.
func (b *BoxSuppressor) Close() error {
	return nil
}

// Candidates transposes channel-major detector output into rows, skipping anchors
// whose best class score is below minScore.
func Candidates(raw Tensor, minScore float32) ([]Row, error) {
	if len(raw.Shape) != 3 {
		return nil, fmt.Errorf("detector output has shape %v, want 3 dims", raw.Shape)
	}
	channels, anchors := int(raw.Shape[1]), int(raw.Shape[2])
	if channels < 5 {
		return nil, fmt.Errorf("detector output has %d channels, want at least 5", channels)
	}
	if len(raw.Data) < channels*anchors {
		return nil, fmt.Errorf("detector output holds %d values, shape %v needs %d", len(raw.Data), raw.Shape, channels*anchors)
	}

	var rows []Row
	for i := 0; i < anchors; i++ {
		scores := make([]float32, channels-4)
		for c := range scores {
			scores[c] = raw.Data[(c+4)*anchors+i]
		}
		if _, best := ArgMax(scores); best < minScore {
			continue
		}

		row := Row{Scores: scores}
		for k := 0; k < 4; k++ {
			row.Box[k] = raw.Data[k*anchors+i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rect converts the row box to integer corners for NMSBoxes.
func (r Row) rect() image.Rectangle {
	cx, cy, w, h := float64(r.Box[0]), float64(r.Box[1]), float64(r.Box[2]), float64(r.Box[3])
	return image.Rect(
		int(math.Round(cx-w/2)),
		int(math.Round(cy-h/2)),
		int(math.Round(cx+w/2)),
		int(math.Round(cy+h/2)),
	)
}

// IoU returns the intersection over union of two rows' boxes.
func IoU(a, b Row) float64 {
	ax1, ay1 := float64(a.Box[0]-a.Box[2]/2), float64(a.Box[1]-a.Box[3]/2)
	ax2, ay2 := ax1+float64(a.Box[2]), ay1+float64(a.Box[3])
	bx1, by1 := float64(b.Box[0]-b.Box[2]/2), float64(b.Box[1]-b.Box[3]/2)
	bx2, by2 := bx1+float64(b.Box[2]), by1+float64(b.Box[3])

	iw := math.Min(ax2, bx2) - math.Max(ax1, bx1)
	ih := math.Min(ay2, by2) - math.Max(ay1, by1)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := float64(a.Box[2]*a.Box[3]) + float64(b.Box[2]*b.Box[3]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
