// Package clock provides the shared presentation clock the render loop
// schedules against, plus the per-stream metronom that maps decoder
// timestamps onto it. All times are 90 kHz ticks.
package clock

import (
	"sync"
	"time"
)

// Hz is the presentation clock rate
const Hz = 90000

// Speed is the playback rate in thousandths of normal speed
type Speed int

const (
	SpeedPause  Speed = 0
	SpeedNormal Speed = 1000
)

// Paused reports whether the clock is stopped
func (s Speed) Paused() bool {
	return s == SpeedPause
}

// Clock is what the display scheduler consumes
type Clock interface {
	CurrentTime() int64
	AdjustClock(vpts int64)
	Speed() Speed
}

// Ticks converts a duration to clock ticks
func Ticks(d time.Duration) int64 {
	return int64(d) * Hz / int64(time.Second)
}

// Duration converts clock ticks to a duration
func Duration(ticks int64) time.Duration {
	return time.Duration(ticks * int64(time.Second) / Hz)
}

// SpeedListener is called after the speed changes
type SpeedListener func(old, new Speed)

// Master is the wall-clock driven presentation clock
type Master struct {
	mu        sync.Mutex
	base      int64
	start     time.Time
	speed     Speed
	listeners map[int]SpeedListener
	nextID    int
	now       func() time.Time
}

// NewMaster creates a running clock starting at vpts 0
func NewMaster() *Master {
	return &Master{
		start:     time.Now(),
		speed:     SpeedNormal,
		listeners: make(map[int]SpeedListener),
		now:       time.Now,
	}
}

func (m *Master) currentLocked() int64 {
	elapsed := m.now().Sub(m.start)
	return m.base + Ticks(elapsed)*int64(m.speed)/int64(SpeedNormal)
}

// CurrentTime returns the current vpts
func (m *Master) CurrentTime() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked()
}

// AdjustClock sets the current vpts
func (m *Master) AdjustClock(vpts int64) {
	m.mu.Lock()
	m.base = vpts
	m.start = m.now()
	m.mu.Unlock()
}

// Speed returns the current rate
func (m *Master) Speed() Speed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// SetSpeed changes the rate without a jump in vpts and notifies listeners
func (m *Master) SetSpeed(speed Speed) {
	if speed < 0 {
		speed = SpeedPause
	}
	m.mu.Lock()
	old := m.speed
	if old == speed {
		m.mu.Unlock()
		return
	}
	m.base = m.currentLocked()
	m.start = m.now()
	m.speed = speed
	listeners := make([]SpeedListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(old, speed)
	}
}

// OnSpeedChange registers a listener and returns a function removing it
func (m *Master) OnSpeedChange(l SpeedListener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Manual is a clock that only moves when told to
type Manual struct {
	mu    sync.Mutex
	now   int64
	speed Speed
}

// NewManual creates a manual clock at vpts
func NewManual(vpts int64) *Manual {
	return &Manual{now: vpts, speed: SpeedNormal}
}

func (m *Manual) CurrentTime() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AdjustClock(vpts int64) {
	m.Set(vpts)
}

func (m *Manual) Speed() Speed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// Set jumps to vpts
func (m *Manual) Set(vpts int64) {
	m.mu.Lock()
	m.now = vpts
	m.mu.Unlock()
}

// Advance moves the clock forward by ticks
func (m *Manual) Advance(ticks int64) {
	m.mu.Lock()
	m.now += ticks
	m.mu.Unlock()
}

// SetSpeed changes the reported speed
func (m *Manual) SetSpeed(s Speed) {
	m.mu.Lock()
	m.speed = s
	m.mu.Unlock()
}
