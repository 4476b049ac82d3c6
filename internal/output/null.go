package output

import (
	"sync"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
)

// NullDriver accepts every frame and shows nothing. It backs headless runs
// and lets callers observe what the render loop presents.
type NullDriver struct {
	mu        sync.Mutex
	open      bool
	displayed int
	vpts      []int64
	layers    int
	redraw    bool
	values    map[Property]int

	// FailFormat, when set, makes UpdateFrameFormat report a device
	// allocation failure for the given params
	FailFormat func(p frame.Params) bool
	// OnDisplay is called with each frame before it is released
	OnDisplay func(f *frame.Frame)
}

var nullRange = Range{Min: 0, Max: 100, Default: 50}

// NewNull creates a null driver
func NewNull() *NullDriver {
	d := &NullDriver{values: make(map[Property]int)}
	for _, p := range Properties() {
		d.values[p] = nullRange.Default
	}
	return d
}

func (d *NullDriver) Name() string {
	return "null"
}

func (d *NullDriver) Open() error {
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	return nil
}

func (d *NullDriver) Close() error {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	return nil
}

func (d *NullDriver) UpdateFrameFormat(f *frame.Frame, p frame.Params) {
	if d.FailFormat != nil && d.FailFormat(p) {
		f.Width, f.Height = 0, 0
		return
	}
	if err := f.AllocPlanes(p.Width, p.Height, p.Format); err != nil {
		f.Width, f.Height = 0, 0
	}
}

func (d *NullDriver) OverlayBlend(f *frame.Frame, layers []overlay.Layer) {
	d.mu.Lock()
	d.layers += len(layers)
	d.mu.Unlock()
}

func (d *NullDriver) DisplayFrame(f *frame.Frame) {
	if d.OnDisplay != nil {
		d.OnDisplay(f)
	}
	d.mu.Lock()
	d.displayed++
	d.vpts = append(d.vpts, f.VPTS)
	d.redraw = false
	d.mu.Unlock()
	f.Release()
}

func (d *NullDriver) RedrawNeeded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.redraw
}

// RequestRedraw makes the next RedrawNeeded return true
func (d *NullDriver) RequestRedraw() {
	d.mu.Lock()
	d.redraw = true
	d.mu.Unlock()
}

func (d *NullDriver) PropertyRange(p Property) (Range, bool) {
	if p < 0 || p >= numProperties {
		return Range{}, false
	}
	return nullRange, true
}

func (d *NullDriver) GetProperty(p Property) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[p]
}

func (d *NullDriver) SetProperty(p Property, value int) int {
	value = nullRange.Clamp(value)
	d.mu.Lock()
	d.values[p] = value
	d.mu.Unlock()
	return value
}

// Displayed returns how many frames were presented
func (d *NullDriver) Displayed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.displayed
}

// DisplayedVPTS returns the vpts of every presented frame in order
func (d *NullDriver) DisplayedVPTS() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.vpts...)
}

// Layers returns how many overlay layers were blended
func (d *NullDriver) Layers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layers
}
