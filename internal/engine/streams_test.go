package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

type countingFlusher struct {
	n atomic.Int32
}

func (c *countingFlusher) FlushDecoder() {
	c.n.Add(1)
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return Event{}
}

func TestStreamLifecycle(t *testing.T) {
	e, clk, _ := newTestEngine(t, 4, nil)
	events, unsubscribe := e.Subscribe(8)
	defer unsubscribe()

	st := e.OpenStream(StreamOptions{
		Name:     "movie",
		Metronom: clock.NewMetronom(clk, 9000, 3000),
	})
	if e.NumStreams() != 1 {
		t.Fatalf("streams = %d", e.NumStreams())
	}
	if got, ok := e.Stream(st.ID()); !ok || got != st {
		t.Fatal("Stream lookup failed")
	}

	f := acquire(t, e)
	f.PTS = 0
	f.Draw(st)
	f.Free()
	if f.VPTS != 9000 || !f.FirstAfterSeek || f.Duration != 3000 {
		t.Fatalf("stamped %v first=%v dur=%d", f, f.FirstAfterSeek, f.Duration)
	}
	if s := st.Stats(); s.Delivered != 1 || s.Queued != 1 {
		t.Fatalf("stats = %+v", s)
	}

	st.MarkEOF()
	if st.Stats().Finished {
		t.Fatal("finished with a frame still queued")
	}

	e.migrate()
	shown, _ := e.popNext(9000)
	if shown != f {
		t.Fatalf("popNext = %v", shown)
	}
	e.present(shown)

	first := nextEvent(t, events)
	if first.Type != EventFirstFrame || first.StreamID != st.ID() || first.VPTS != 9000 {
		t.Errorf("first event = %+v", first)
	}
	done := nextEvent(t, events)
	if done.Type != EventStreamFinished || done.StreamID != st.ID() {
		t.Errorf("second event = %+v", done)
	}

	s := st.Stats()
	if s.Displayed != 1 || s.Queued != 0 || !s.Finished || s.LastVPTS != 9000 {
		t.Errorf("stats = %+v", s)
	}

	st.Close()
	if e.NumStreams() != 0 {
		t.Error("stream still attached after Close")
	}
}

func TestStreamMarkEOFWhenIdle(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, nil)
	events, unsubscribe := e.Subscribe(1)
	defer unsubscribe()

	st := e.OpenStream(StreamOptions{Name: "empty"})
	st.MarkEOF()
	if ev := nextEvent(t, events); ev.Type != EventStreamFinished {
		t.Errorf("event = %+v", ev)
	}

	st.Discontinuity()
	if st.Stats().Finished || st.Stats().EOF {
		t.Error("discontinuity did not reset end of stream")
	}
}

func TestStreamDiscontinuityMarksSeek(t *testing.T) {
	e, clk, _ := newTestEngine(t, 4, nil)
	st := e.OpenStream(StreamOptions{Metronom: clock.NewMetronom(clk, 0, 3000)})

	for i := 0; i < 2; i++ {
		f := acquire(t, e)
		f.PTS = int64(i) * 3000
		f.Draw(st)
		f.Free()
		if f.FirstAfterSeek != (i == 0) {
			t.Errorf("frame %d first = %v", i, f.FirstAfterSeek)
		}
	}

	st.Discontinuity()
	f := acquire(t, e)
	f.PTS = 500000
	f.Draw(st)
	f.Free()
	if !f.FirstAfterSeek {
		t.Error("frame after discontinuity not marked")
	}
}

func TestStreamsSortedByOpen(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, nil)
	a := e.OpenStream(StreamOptions{Name: "a"})
	time.Sleep(time.Millisecond)
	b := e.OpenStream(StreamOptions{Name: "b"})

	list := e.Streams()
	if len(list) != 2 || list[0].ID != a.ID() || list[1].ID != b.ID() {
		t.Errorf("streams = %+v", list)
	}
}

func TestStreamReportSkipped(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, nil)
	st := e.OpenStream(StreamOptions{})
	st.ReportSkipped(3)
	st.ReportSkipped(0)
	if st.Stats().Skipped != 3 || e.Stats().Skipped != 3 {
		t.Errorf("stream %d engine %d", st.Stats().Skipped, e.Stats().Skipped)
	}
}

func TestStarvationNudgesOncePerGap(t *testing.T) {
	e, _, _ := newTestEngine(t, 4, func(o *Options) {
		o.StarvationTimeout = 10 * time.Millisecond
	})
	fl := &countingFlusher{}
	st := e.OpenStream(StreamOptions{Flusher: fl})

	draw := func(vpts int64) {
		f := acquire(t, e)
		f.VPTS = vpts
		f.Draw(st)
		f.Free()
	}

	// nothing on screen yet
	time.Sleep(20 * time.Millisecond)
	e.checkStarvation()
	if fl.n.Load() != 0 {
		t.Fatal("nudged before anything was shown")
	}

	draw(0)
	e.migrate()
	f, _ := e.popNext(0)
	e.present(f)

	time.Sleep(20 * time.Millisecond)
	e.checkStarvation()
	e.checkStarvation()
	if fl.n.Load() != 1 {
		t.Fatalf("flushes = %d, want 1", fl.n.Load())
	}

	draw(3000)
	time.Sleep(20 * time.Millisecond)
	e.checkStarvation()
	if fl.n.Load() != 2 {
		t.Errorf("flushes = %d, want 2 after a new gap", fl.n.Load())
	}
}

func TestStarvationSkipsFinishedStreams(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, func(o *Options) {
		o.StarvationTimeout = time.Millisecond
	})
	fl := &countingFlusher{}
	st := e.OpenStream(StreamOptions{Flusher: fl})

	f := acquire(t, e)
	f.Draw(st)
	f.Free()
	e.migrate()
	shown, _ := e.popNext(0)
	e.present(shown)

	st.MarkEOF()
	time.Sleep(5 * time.Millisecond)
	e.checkStarvation()
	if fl.n.Load() != 0 {
		t.Error("nudged a stream at end of stream")
	}
}

func TestDroppedFramesEvent(t *testing.T) {
	e, _, _ := newTestEngine(t, 12, func(o *Options) {
		o.StatsWindow = 10
		o.SkipThreshold = 10
		o.DiscardThreshold = 10
		o.WarnWindows = 2
	})
	events, unsubscribe := e.Subscribe(8)
	defer unsubscribe()

	drawBad := func(n int) {
		for i := 0; i < n; i++ {
			f := acquire(t, e)
			f.Bad = true
			f.Draw(nil)
			f.Free()
		}
	}
	expectNone := func(when string) {
		t.Helper()
		select {
		case ev := <-events:
			t.Fatalf("%s: unexpected %+v", when, ev)
		default:
		}
	}

	drawBad(10)
	expectNone("one bad window")

	drawBad(10)
	ev := nextEvent(t, events)
	if ev.Type != EventDroppedFrames || ev.Dropped == nil || ev.Dropped.SkippedPercent != 100 {
		t.Fatalf("event = %+v", ev)
	}

	drawBad(20)
	expectNone("still bad")

	// a healthy window re-arms the warning
	for i := 0; i < 10; i++ {
		drawAt(t, e, 900000+int64(i)*3000, 3000)
	}
	drawBad(20)
	if ev := nextEvent(t, events); ev.Type != EventDroppedFrames {
		t.Fatalf("event = %+v", ev)
	}

	if got := e.Stats().Warnings; got != 2 {
		t.Errorf("warnings = %d, want 2", got)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	e, _, _ := newTestEngine(t, 1, nil)
	ch, unsubscribe := e.Subscribe(0)
	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel still open")
	}
	// publishing with no subscribers must not block
	e.events.publish(Event{Type: EventFirstFrame})
}

func TestStatsSnapshot(t *testing.T) {
	e, _, _ := newTestEngine(t, 4, nil)
	drawAt(t, e, 90000, 3000)
	s := e.Stats()
	if s.PoolSize != 4 || s.Free != 3 || s.InFlight != 1 || s.DisplayQueued != 1 || s.Delivered != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.Driver != "null" || s.State.ModeName != "normal" {
		t.Errorf("driver=%q mode=%q", s.Driver, s.State.ModeName)
	}
}

func TestGrabNothingOnScreen(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, nil)
	if _, err := e.NewGrabber(GrabOptions{}).Grab(context.Background()); err != ErrNotAvailable {
		t.Fatalf("err = %v, want ErrNotAvailable", err)
	}
}

func fillGray(f *frame.Frame, y byte) {
	for i := range f.Planes[0] {
		f.Planes[0][i] = y
	}
	for _, p := range f.Planes[1:] {
		for i := range p {
			p[i] = 128
		}
	}
}

func TestGrabCurrentFrame(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, nil)
	f := acquire(t, e)
	fillGray(f, 200)
	f.Draw(nil)
	f.Free()
	e.migrate()
	shown, _ := e.popNext(0)
	e.present(shown)
	free := e.FreeCount()

	c, err := e.NewGrabber(GrabOptions{}).Grab(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Width != 16 || c.Height != 16 || c.Format != frame.FormatYV12 {
		t.Fatalf("capture = %+v", c)
	}
	if e.FreeCount() != free {
		t.Errorf("grab leaked a reference: free %d, want %d", e.FreeCount(), free)
	}

	// the capture is a private copy
	fillGray(f, 10)
	if c.Frame().Planes[0][0] != 200 {
		t.Error("capture shares pixels with the pool frame")
	}

	img, err := c.Image()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Fatalf("image bounds = %v", img.Bounds())
	}
	px := img.RGBAAt(3, 3)
	if px.R != px.G || px.G != px.B || px.R < 150 {
		t.Errorf("pixel = %+v, want light gray", px)
	}
}

func TestGrabScaled(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, nil)
	drawAt(t, e, 0, 3000)
	e.migrate()
	shown, _ := e.popNext(0)
	e.present(shown)

	c, err := e.NewGrabber(GrabOptions{Width: 8, Height: 4, Scaler: "nearest"}).Grab(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	img, err := c.Image()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Errorf("bounds = %v, want 8x4", img.Bounds())
	}
}

func TestGrabCropOptIn(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, nil)
	e.SetCrop(frame.Crop{Left: 4, Right: 4})
	drawAt(t, e, 0, 3000)
	e.migrate()
	shown, _ := e.popNext(0)
	e.present(shown)

	for _, tt := range []struct {
		crop  bool
		width int
	}{
		{crop: false, width: 16},
		{crop: true, width: 8},
	} {
		c, err := e.NewGrabber(GrabOptions{Crop: tt.crop}).Grab(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		img, err := c.Image()
		if err != nil {
			t.Fatal(err)
		}
		if img.Bounds().Dx() != tt.width {
			t.Errorf("crop=%v width = %d, want %d", tt.crop, img.Bounds().Dx(), tt.width)
		}
	}
}

// Scenario: waiting for the next frame when nothing arrives times out.
func TestGrabWaitNextTimeout(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, nil)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	g := e.NewGrabber(GrabOptions{WaitNext: true, Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := g.Grab(context.Background())
	elapsed := time.Since(start)
	if err != ErrNotAvailable {
		t.Fatalf("err = %v, want ErrNotAvailable", err)
	}
	if elapsed < 100*time.Millisecond || elapsed > time.Second {
		t.Errorf("returned after %v", elapsed)
	}
	if e.PendingGrabs() != 0 {
		t.Error("request left pending")
	}
}

func TestGrabWaitNextDelivered(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, nil)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	g := e.NewGrabber(GrabOptions{WaitNext: true, Timeout: 2 * time.Second})

	type result struct {
		c   *Capture
		err error
	}
	got := make(chan result, 1)
	go func() {
		c, err := g.Grab(context.Background())
		got <- result{c, err}
	}()
	waitFor(t, "grab request", func() bool { return e.PendingGrabs() == 1 })

	drawAt(t, e, 0, 3000)
	r := <-got
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.c.VPTS != 0 || r.c.Width != 16 {
		t.Errorf("capture = %+v", r.c)
	}
	e.Stop()
	if e.FreeCount() != 2 {
		t.Errorf("free = %d, want 2 with the backup held", e.FreeCount())
	}
}

func TestGrabWaitNextWhilePaused(t *testing.T) {
	e, clk, drv := newTestEngine(t, 4, nil)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	drawAt(t, e, 0, 3000)
	waitFor(t, "first frame", func() bool { return drv.Displayed() == 1 })
	clk.SetSpeed(clock.SpeedPause)
	clk.Set(1500)

	g := e.NewGrabber(GrabOptions{WaitNext: true, Timeout: time.Second})
	c, err := g.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab while paused: %v", err)
	}
	if c.Width != 16 || c.Height != 16 {
		t.Errorf("capture = %+v", c)
	}
	if e.PendingGrabs() != 0 {
		t.Error("request left pending")
	}
	e.Stop()
	if e.FreeCount() != 3 {
		t.Errorf("free = %d, want 3 with the backup held", e.FreeCount())
	}
}

func TestGrabWaitNextCancelled(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	g := e.NewGrabber(GrabOptions{WaitNext: true, Timeout: time.Minute})
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := g.Grab(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
