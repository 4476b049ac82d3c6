// Package frame defines the pooled picture buffer shared by decoders, the
// display scheduler and output drivers, plus the FIFO queues that hold it.
//
// A Frame carries a manual reference count. The owning engine hands a frame
// out with one reference; every holder that keeps it past a call must take
// its own reference with Ref and drop it with Release. When the count reaches
// zero the frame goes back to its owner's free queue. Pixels must not be
// written after Draw: from that point on the frame is shared read-only.
package frame

import (
	"fmt"
	"sync"
)

// Stream is the opaque per-session back reference a frame carries
type Stream interface {
	ID() string
}

// Owner is the engine a pooled frame belongs to
type Owner interface {
	// DrawFrame queues f for display and returns a suggested skip count
	DrawFrame(f *Frame, s Stream) int
	// RecycleFrame takes back a frame whose reference count reached zero
	RecycleFrame(f *Frame)
}

// Frame is one decoded picture plus its timing and format metadata
type Frame struct {
	Width  int
	Height int
	Ratio  float64
	Format Format
	Flags  Flags

	// PTS is the decoder timestamp, VPTS the scheduled display time on the
	// presentation clock. Both are 90 kHz ticks.
	PTS      int64
	VPTS     int64
	Duration int64

	Crop Crop
	Bad  bool

	// FirstAfterSeek marks the first picture of a stream after start or seek
	FirstAfterSeek bool
	Stream         Stream

	Planes  [3][]byte
	Pitches [3]int

	// DriverData holds whatever surface the output driver attached
	DriverData any
	// DriverGen is the driver generation the planes were formatted for
	DriverGen uint64

	id    int
	owner Owner

	mu   sync.Mutex
	refs int
}

// New creates an unreferenced frame belonging to owner
func New(id int, owner Owner) *Frame {
	return &Frame{id: id, owner: owner, PTS: NoPTS}
}

// ID returns the frame's pool index
func (f *Frame) ID() int {
	return f.id
}

// String implements fmt.Stringer for log output
func (f *Frame) String() string {
	return fmt.Sprintf("frame#%d(%dx%d %s vpts=%d refs=%d)", f.id, f.Width, f.Height, f.Format, f.VPTS, f.Refs())
}

// Refs returns the current reference count
func (f *Frame) Refs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs
}

// Ref takes an additional reference
func (f *Frame) Ref() *Frame {
	f.mu.Lock()
	f.refs++
	f.mu.Unlock()
	return f
}

// RefN takes n references at once
func (f *Frame) RefN(n int) {
	f.mu.Lock()
	f.refs += n
	f.mu.Unlock()
}

// Adopt takes over a queued frame that only the display queue references,
// leaving the caller as the sole holder. It fails if anyone else holds it.
func (f *Frame) Adopt() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs == 0 || f.refs > 2 {
		return false
	}
	f.refs = 1
	return true
}

// Release drops one reference. The last release hands the frame back to its
// owner. Releasing an unreferenced frame is a programming error.
func (f *Frame) Release() {
	f.mu.Lock()
	if f.refs <= 0 {
		f.mu.Unlock()
		panic(fmt.Sprintf("frame: release of unreferenced frame #%d", f.id))
	}
	f.refs--
	last := f.refs == 0
	if last {
		f.Stream = nil
	}
	f.mu.Unlock()

	if last && f.owner != nil {
		f.owner.RecycleFrame(f)
	}
}

// Free drops the caller's reference without drawing the frame
func (f *Frame) Free() {
	f.Release()
}

// Draw hands the frame to the display scheduler. The caller keeps its own
// reference and must still Free it.
func (f *Frame) Draw(s Stream) int {
	if f.owner == nil {
		return 0
	}
	return f.owner.DrawFrame(f, s)
}

// Reset clears the transient per-use fields
func (f *Frame) Reset() {
	f.PTS = NoPTS
	f.VPTS = 0
	f.Duration = 0
	f.Crop = Crop{}
	f.Bad = false
	f.FirstAfterSeek = false
	f.Stream = nil
}

// Params returns the geometry the frame is currently formatted for
func (f *Frame) Params() Params {
	return Params{Width: f.Width, Height: f.Height, Ratio: f.Ratio, Format: f.Format, Flags: f.Flags}
}

// Matches reports whether the frame is already formatted as p asks
func (f *Frame) Matches(p Params) bool {
	return f.Width == p.Width && f.Height == p.Height && f.Format == p.Format
}

// AllocPlanes lays out pixel planes for the given geometry, reusing the
// existing backing arrays when they are large enough.
func (f *Frame) AllocPlanes(width, height int, format Format) error {
	pitches, rows, err := planeLayout(width, height, format)
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		size := pitches[i] * rows[i]
		if size == 0 {
			f.Planes[i] = nil
			continue
		}
		if cap(f.Planes[i]) >= size {
			f.Planes[i] = f.Planes[i][:size]
		} else {
			f.Planes[i] = make([]byte, size)
		}
	}
	f.Pitches = pitches
	f.Width = width
	f.Height = height
	f.Format = format
	return nil
}

// CopyPixels copies src's planes into dst. Both must share format and size.
func CopyPixels(dst, src *Frame) error {
	if dst.Format != src.Format || dst.Width != src.Width || dst.Height != src.Height {
		return fmt.Errorf("copy %s into %s: geometry mismatch", src, dst)
	}
	_, rows, err := planeLayout(src.Width, src.Height, src.Format)
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if rows[i] == 0 {
			continue
		}
		n := min(dst.Pitches[i], src.Pitches[i])
		for y := 0; y < rows[i]; y++ {
			copy(dst.Planes[i][y*dst.Pitches[i]:y*dst.Pitches[i]+n], src.Planes[i][y*src.Pitches[i]:y*src.Pitches[i]+n])
		}
	}
	return nil
}
