package tray

import (
	"testing"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/detector"
)

func det(label string, conf float64) detector.Detection {
	return detector.Detection{Label: label, Confidence: conf}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		dets []detector.Detection
		want string
	}{
		{"empty", nil, ""},
		{"one", []detector.Detection{det("person", 0.921)}, "person 92%"},
		{"three", []detector.Detection{det("person", 0.9), det("dog", 0.71), det("cat", 0.5)}, "person 90%, dog 71%, cat 50%"},
		{"overflow", []detector.Detection{det("a", 0.9), det("b", 0.8), det("c", 0.7), det("d", 0.6), det("e", 0.5)}, "a 90%, b 80%, c 70% +2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.dets); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTray_StateWithoutMenu(t *testing.T) {
	tr := New()

	if tr.IsCapturing() {
		t.Error("new tray should be idle")
	}
	if tr.Last() != "none" {
		t.Errorf("Last() = %q, want none", tr.Last())
	}

	tr.SetCapturing(true)
	if !tr.IsCapturing() {
		t.Error("expected capturing after SetCapturing(true)")
	}

	tr.Publish(app.Result{Detections: []detector.Detection{det("person", 0.8)}})
	if tr.Last() != "person 80%" {
		t.Errorf("Last() = %q, want person 80%%", tr.Last())
	}

	// empty ticks keep the previous summary
	tr.Publish(app.Result{})
	if tr.Last() != "person 80%" {
		t.Errorf("Last() after empty tick = %q", tr.Last())
	}

	tr.SetCapturing(false)
	if tr.Last() != "none" {
		t.Errorf("Last() after stop = %q, want none", tr.Last())
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New()

	var toggled, opened, quit int
	tr.OnToggle(func() { toggled++ })
	tr.OnOpen(func() { opened++ })
	tr.OnQuit(func() { quit++ })

	tr.handle(tr.toggleCallback())
	tr.handle(tr.openCallback())
	tr.handle(tr.quitCallback())
	tr.handle(nil)

	if toggled != 1 || opened != 1 || quit != 1 {
		t.Errorf("callbacks = %d/%d/%d, want 1/1/1", toggled, opened, quit)
	}
}

func TestToggleTitle(t *testing.T) {
	if toggleTitle(true) == toggleTitle(false) {
		t.Error("expected distinct titles per state")
	}
}
