package clock

import (
	"testing"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

type fakeTime struct {
	t time.Time
}

func (f *fakeTime) now() time.Time { return f.t }

func newTestMaster() (*Master, *fakeTime) {
	ft := &fakeTime{t: time.Unix(1000, 0)}
	m := NewMaster()
	m.now = ft.now
	m.start = ft.t
	return m, ft
}

func TestMasterAdvancesAtNormalSpeed(t *testing.T) {
	m, ft := newTestMaster()
	ft.t = ft.t.Add(time.Second)
	if got := m.CurrentTime(); got != Hz {
		t.Errorf("CurrentTime = %d, want %d", got, Hz)
	}
}

func TestMasterPauseFreezesTime(t *testing.T) {
	m, ft := newTestMaster()
	var seen []Speed
	remove := m.OnSpeedChange(func(old, new Speed) { seen = append(seen, new) })

	ft.t = ft.t.Add(time.Second)
	m.SetSpeed(SpeedPause)
	ft.t = ft.t.Add(5 * time.Second)
	if got := m.CurrentTime(); got != Hz {
		t.Errorf("paused CurrentTime = %d, want %d", got, Hz)
	}

	m.SetSpeed(SpeedNormal / 2)
	ft.t = ft.t.Add(2 * time.Second)
	if got := m.CurrentTime(); got != 2*Hz {
		t.Errorf("half speed CurrentTime = %d, want %d", got, 2*Hz)
	}

	remove()
	m.SetSpeed(SpeedNormal)
	if len(seen) != 2 || seen[0] != SpeedPause {
		t.Errorf("listener saw %v", seen)
	}
}

func TestMasterAdjustClock(t *testing.T) {
	m, ft := newTestMaster()
	m.AdjustClock(500000)
	ft.t = ft.t.Add(10 * time.Millisecond)
	if got := m.CurrentTime(); got != 500900 {
		t.Errorf("CurrentTime = %d, want 500900", got)
	}
}

func TestTicksRoundTrip(t *testing.T) {
	if Ticks(33*time.Millisecond) != 2970 {
		t.Errorf("Ticks(33ms) = %d", Ticks(33*time.Millisecond))
	}
	if Duration(3000) != 33333333*time.Nanosecond {
		t.Errorf("Duration(3000) = %v", Duration(3000))
	}
}

func TestManualClock(t *testing.T) {
	c := NewManual(10)
	c.Advance(5)
	c.AdjustClock(c.CurrentTime() + 1)
	if c.CurrentTime() != 16 {
		t.Errorf("CurrentTime = %d", c.CurrentTime())
	}
	c.SetSpeed(SpeedPause)
	if !c.Speed().Paused() {
		t.Error("speed not paused")
	}
}

func TestMetronomMapsPTS(t *testing.T) {
	c := NewManual(1000)
	m := NewMetronom(c, 9000, 3000)

	f := frame.New(0, nil)
	f.PTS = 50000
	m.Stamp(f)
	if f.VPTS != 10000 || !f.FirstAfterSeek || f.Duration != 3000 {
		t.Fatalf("first frame vpts=%d seek=%v dur=%d", f.VPTS, f.FirstAfterSeek, f.Duration)
	}

	g := frame.New(1, nil)
	g.PTS = 53000
	m.Stamp(g)
	if g.VPTS != 13000 || g.FirstAfterSeek {
		t.Errorf("second frame vpts=%d seek=%v", g.VPTS, g.FirstAfterSeek)
	}

	h := frame.New(2, nil)
	m.Stamp(h)
	if h.VPTS != 16000 {
		t.Errorf("frame without pts vpts=%d, want 16000", h.VPTS)
	}
}

func TestMetronomBackwardsPTSStaysMonotonic(t *testing.T) {
	c := NewManual(0)
	m := NewMetronom(c, 0, 3000)
	a := frame.New(0, nil)
	a.PTS = 90000
	m.Stamp(a)

	b := frame.New(1, nil)
	b.PTS = 1000
	m.Stamp(b)
	if b.VPTS <= a.VPTS {
		t.Errorf("vpts went backwards: %d after %d", b.VPTS, a.VPTS)
	}
}

func TestMetronomDiscontinuityResyncs(t *testing.T) {
	c := NewManual(0)
	m := NewMetronom(c, 0, 3000)
	a := frame.New(0, nil)
	a.PTS = 0
	m.Stamp(a)

	c.Set(90000)
	m.Discontinuity()
	b := frame.New(1, nil)
	b.PTS = 7
	m.Stamp(b)
	if b.VPTS != 90000 || !b.FirstAfterSeek {
		t.Errorf("after seek vpts=%d seek=%v", b.VPTS, b.FirstAfterSeek)
	}
}
