// Package tray provides a system tray menu for starting and stopping capture.
package tray

import (
	"fmt"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/detector"
)

// summaryLimit is how many detections the "Last:" item names.
const summaryLimit = 3

// Tray is the system tray menu.
type Tray struct {
	onToggle  func()
	onOpen    func()
	onQuit    func()
	capturing bool
	last      string
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a new Tray in the idle state.
func New() *Tray {
	return &Tray{last: "none"}
}

// OnToggle sets the callback for the start/stop item.
func (t *Tray) OnToggle(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback for the "Open in browser" item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("detectcam")
	systray.SetTooltip("Webcam object detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.capturing), "Start or stop capture")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem("Last: "+t.last, "Most recent detections")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in browser", "Open the live view")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit detectcam")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handle(t.toggleCallback())
			case <-menuOpen.ClickedCh:
				t.handle(t.openCallback())
			case <-menuQuit.ClickedCh:
				t.handle(t.quitCallback())
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) toggleCallback() func() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onToggle
}

func (t *Tray) openCallback() func() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onOpen
}

func (t *Tray) quitCallback() func() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onQuit
}

// handle runs a callback outside the lock.
func (t *Tray) handle(fn func()) {
	if fn != nil {
		fn()
	}
}

// SetCapturing updates the toggle item. It is registered with app.OnStateChange
// so changes made from the web page show up too.
func (t *Tray) SetCapturing(capturing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.capturing = capturing
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(capturing))
	}
	if !capturing {
		t.setLastLocked("none")
	}
}

// Publish shows the newest detections in the "Last:" item.
func (t *Tray) Publish(r app.Result) {
	summary := Summary(r.Detections)
	if summary == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLastLocked(summary)
}

func (t *Tray) setLastLocked(summary string) {
	if summary == t.last {
		return
	}
	t.last = summary
	if t.menuLast != nil {
		t.menuLast.SetTitle("Last: " + summary)
	}
}

// IsCapturing returns the state last set with SetCapturing.
func (t *Tray) IsCapturing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.capturing
}

// Last returns the current "Last:" summary.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func toggleTitle(capturing bool) string {
	if capturing {
		return "■ Stop capture"
	}
	return "▶ Start capture"
}

// Summary names the first few detections, e.g. "person 92%, dog 71% +2".
// Detections arrive in confidence order.
func Summary(dets []detector.Detection) string {
	if len(dets) == 0 {
		return ""
	}
	n := min(len(dets), summaryLimit)
	parts := make([]string, 0, n)
	for _, d := range dets[:n] {
		parts = append(parts, fmt.Sprintf("%s %.0f%%", d.Label, d.Confidence*100))
	}
	s := strings.Join(parts, ", ")
	if extra := len(dets) - n; extra > 0 {
		s += fmt.Sprintf(" +%d", extra)
	}
	return s
}
