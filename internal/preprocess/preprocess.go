// Package preprocess turns camera frames into normalized NCHW tensors for the detector.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ErrInvalidFrame is returned for frames with no pixels or an unsupported channel count.
var ErrInvalidFrame = errors.New("invalid frame")

// Input is a preprocessed frame ready for inference.
type Input struct {
	// Data is the float32 tensor in NCHW order with values in [0,1].
	Data []float32

	// Width and Height are the model input dimensions.
	Width  int
	Height int

	// FrameWidth and FrameHeight are the source frame dimensions.
	FrameWidth  int
	FrameHeight int

	// XRatio and YRatio are padded size over original size per axis.
	XRatio float64
	YRatio float64
}

// Shape returns the tensor shape [1, 3, Height, Width].
func (in Input) Shape() []int64 {
	return []int64{1, 3, int64(in.Height), int64(in.Width)}
}

// Scale returns the factors that take model-space coordinates to frame pixels.
// Model space covers the padded square, so each factor is XRatio*FrameWidth/Width.
func (in Input) Scale() (x, y float64) {
	if in.Width == 0 || in.Height == 0 {
		return 0, 0
	}
	x = in.XRatio * float64(in.FrameWidth) / float64(in.Width)
	y = in.YRatio * float64(in.FrameHeight) / float64(in.Height)
	return x, y
}

// Ratios computes the square side used for padding and the per-axis padding ratios.
func Ratios(width, height int) (side int, xRatio, yRatio float64, err error) {
	if width <= 0 || height <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, width, height)
	}
	side = max(width, height)
	return side, float64(side) / float64(width), float64(side) / float64(height), nil
}

// Prepare converts frame to BGR, pads it to a square with black on the right and
// bottom, then resizes, scales to [0,1] and swaps to RGB in a single blob pass.
func Prepare(frame gocv.Mat, width, height int) (Input, error) {
	if width <= 0 || height <= 0 {
		return Input{}, fmt.Errorf("target size %dx%d must be positive", width, height)
	}
	if frame.Empty() {
		return Input{}, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	side, xRatio, yRatio, err := Ratios(frame.Cols(), frame.Rows())
	if err != nil {
		return Input{}, err
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	switch frame.Channels() {
	case 3:
		frame.CopyTo(&bgr)
	case 4:
		gocv.CvtColor(frame, &bgr, gocv.ColorBGRAToBGR)
	case 1:
		gocv.CvtColor(frame, &bgr, gocv.ColorGrayToBGR)
	default:
		return Input{}, fmt.Errorf("%w: %d channels", ErrInvalidFrame, frame.Channels())
	}

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(bgr, &padded, 0, side-bgr.Rows(), 0, side-bgr.Cols(), gocv.BorderConstant, color.RGBA{})

	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(width, height), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return Input{}, fmt.Errorf("read blob: %w", err)
	}

	// the blob owns data; copy before it is closed
	tensor := make([]float32, len(data))
	copy(tensor, data)

	return Input{
		Data:        tensor,
		Width:       width,
		Height:      height,
		FrameWidth:  frame.Cols(),
		FrameHeight: frame.Rows(),
		XRatio:      xRatio,
		YRatio:      yRatio,
	}, nil
}
