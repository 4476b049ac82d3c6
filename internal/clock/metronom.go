package clock

import (
	"sync"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

// Metronom maps one stream's decoder pts onto the presentation clock
type Metronom struct {
	mu              sync.Mutex
	clk             Clock
	prebuffer       int64
	defaultDuration int64

	offset   int64
	synced   bool
	lastVPTS int64
	seek     bool
}

// NewMetronom creates a metronom that schedules the first frame prebuffer
// ticks ahead of the clock
func NewMetronom(clk Clock, prebuffer, defaultDuration int64) *Metronom {
	return &Metronom{
		clk:             clk,
		prebuffer:       prebuffer,
		defaultDuration: defaultDuration,
		seek:            true,
	}
}

// Discontinuity re-syncs the mapping on the next frame and marks that frame
// as the first after a seek
func (m *Metronom) Discontinuity() {
	m.mu.Lock()
	m.synced = false
	m.seek = true
	m.mu.Unlock()
}

// Stamp assigns VPTS and a duration to f
func (m *Metronom) Stamp(f *frame.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.Duration <= 0 {
		f.Duration = m.defaultDuration
	}

	if !m.synced {
		start := m.clk.CurrentTime() + m.prebuffer
		if m.lastVPTS > start {
			start = m.lastVPTS + f.Duration
		}
		if f.PTS != frame.NoPTS {
			m.offset = start - f.PTS
		}
		m.synced = true
		m.setLocked(f, start)
		return
	}

	if f.PTS == frame.NoPTS {
		m.setLocked(f, m.lastVPTS+f.Duration)
		return
	}

	vpts := f.PTS + m.offset
	if vpts <= m.lastVPTS {
		// pts went backwards without a discontinuity
		next := m.lastVPTS + f.Duration
		m.offset = next - f.PTS
		vpts = next
	}
	m.setLocked(f, vpts)
}

func (m *Metronom) setLocked(f *frame.Frame, vpts int64) {
	f.VPTS = vpts
	m.lastVPTS = vpts
	if m.seek {
		f.FirstAfterSeek = true
		m.seek = false
	}
}
