package preprocess

import (
	"errors"
	"math"
	"testing"

	"gocv.io/x/gocv"
)

const epsilon = 1e-9

func TestRatios(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantSide   int
		wantXRatio float64
		wantYRatio float64
	}{
		{"wide frame pads height", 640, 320, 640, 1.0, 2.0},
		{"tall frame pads width", 240, 480, 480, 2.0, 1.0},
		{"square frame unchanged", 416, 416, 416, 1.0, 1.0},
		{"webcam 4:3", 640, 480, 640, 1.0, 640.0 / 480.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, xr, yr, err := Ratios(tt.w, tt.h)
			if err != nil {
				t.Fatalf("Ratios() error = %v", err)
			}
			if side != tt.wantSide {
				t.Errorf("side = %d, want %d", side, tt.wantSide)
			}
			if math.Abs(xr-tt.wantXRatio) > epsilon || math.Abs(yr-tt.wantYRatio) > epsilon {
				t.Errorf("ratios = (%f, %f), want (%f, %f)", xr, yr, tt.wantXRatio, tt.wantYRatio)
			}
		})
	}
}

func TestRatios_InvalidFrame(t *testing.T) {
	for _, size := range [][2]int{{0, 480}, {640, 0}, {0, 0}, {-1, 10}} {
		if _, _, _, err := Ratios(size[0], size[1]); !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("Ratios(%d, %d) error = %v, want ErrInvalidFrame", size[0], size[1], err)
		}
	}
}

func TestInput_Scale(t *testing.T) {
	in := Input{Width: 416, Height: 416, FrameWidth: 640, FrameHeight: 320, XRatio: 1, YRatio: 2}

	x, y := in.Scale()
	want := 640.0 / 416.0
	if math.Abs(x-want) > epsilon || math.Abs(y-want) > epsilon {
		t.Errorf("Scale() = (%f, %f), want (%f, %f)", x, y, want, want)
	}

	if x, y := (Input{}).Scale(); x != 0 || y != 0 {
		t.Errorf("zero Input Scale() = (%f, %f), want zeros", x, y)
	}
}

func TestPrepare_WideFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(320, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(255, 255, 255, 0))

	in, err := Prepare(frame, 416, 416)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if in.XRatio != 1.0 || in.YRatio != 2.0 {
		t.Errorf("ratios = (%f, %f), want (1.0, 2.0)", in.XRatio, in.YRatio)
	}
	if len(in.Data) != 3*416*416 {
		t.Fatalf("len(Data) = %d, want %d", len(in.Data), 3*416*416)
	}

	// top rows carry the white frame, bottom rows are the black padding
	top := in.Data[10*416+10]
	bottom := in.Data[400*416+10]
	if top < 0.99 {
		t.Errorf("top pixel = %f, want ~1.0", top)
	}
	if bottom != 0 {
		t.Errorf("padded pixel = %f, want 0", bottom)
	}

	for _, v := range in.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %f outside [0,1]", v)
		}
	}
}

func TestPrepare_BGRAFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC4)
	defer frame.Close()

	in, err := Prepare(frame, 416, 416)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if in.FrameWidth != 640 || in.FrameHeight != 480 {
		t.Errorf("frame size = %dx%d, want 640x480", in.FrameWidth, in.FrameHeight)
	}
}

func TestPrepare_EmptyFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMat()
	defer frame.Close()

	if _, err := Prepare(frame, 416, 416); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("Prepare() error = %v, want ErrInvalidFrame", err)
	}
}
