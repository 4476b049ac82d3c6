package source

import (
	"context"
	"testing"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/config"
	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/output"
)

func newEngine(t *testing.T, pool int) (*engine.Engine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(0)
	opts := engine.DefaultOptions()
	opts.PoolSize = pool
	e := engine.New(clk, output.NewNull(), opts)
	t.Cleanup(e.Close)
	return e, clk
}

func testConfig(frames int) Config {
	return Config{
		Kind:            "pattern",
		Width:           32,
		Height:          16,
		FPS:             30,
		Format:          frame.FormatYV12,
		Frames:          frames,
		Prebuffer:       9000,
		DefaultDuration: 3000,
	}
}

func TestFromConfig(t *testing.T) {
	cfg, err := FromConfig(config.Defaults().Source, config.DefaultEngine())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kind != "pattern" || cfg.Format != frame.FormatYV12 || cfg.FrameDuration() != 3000 {
		t.Errorf("cfg = %+v", cfg)
	}

	bad := config.Defaults().Source
	bad.Format = "nv12"
	if _, err := FromConfig(bad, config.DefaultEngine()); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestNewUnknownKind(t *testing.T) {
	e, _ := newEngine(t, 2)
	cfg := testConfig(0)
	cfg.Kind = "v4l2"
	if _, err := New(e, cfg); err == nil {
		t.Fatal("expected an error")
	}
	found := false
	for _, k := range Kinds() {
		found = found || k == "pattern"
	}
	if !found {
		t.Errorf("kinds = %v, want pattern registered", Kinds())
	}
}

func TestPatternDrawsScheduledFrames(t *testing.T) {
	e, clk := newEngine(t, 5)
	src, err := New(e, testConfig(3))
	if err != nil {
		t.Fatal(err)
	}
	events, unsubscribe := e.Subscribe(4)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := src.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := e.Stats()
	if s.Delivered != 3 || s.DisplayQueued != 3 {
		t.Fatalf("stats = %+v", s)
	}
	if e.NumStreams() != 0 {
		t.Error("stream left attached after Run")
	}

	// play them out
	clk.Set(15000)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == engine.EventStreamFinished {
				return
			}
		case <-timeout:
			t.Fatal("no stream_finished event")
		}
	}
}

func TestPatternTimestamps(t *testing.T) {
	e, _ := newEngine(t, 4)
	p, err := NewPattern(e, testConfig(0))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Stream().Close()

	drv := output.NewNull()
	e.ReplaceDriver(drv)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.decodeOne(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if st := p.Stream().Stats(); st.Delivered != 3 || st.Queued != 3 {
		t.Fatalf("stream stats = %+v", st)
	}

	// the seek picture is shown at once, 12000 is then behind it
	e.Clock().(*clock.Manual).Set(15000)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for drv.Displayed() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	e.Stop()

	vpts := drv.DisplayedVPTS()
	if len(vpts) != 2 || vpts[0] != 15000 || vpts[1] != 15000 {
		t.Errorf("displayed %v, want [15000 15000]", vpts)
	}
}

func TestPatternSeek(t *testing.T) {
	e, clk := newEngine(t, 4)
	p, err := NewPattern(e, testConfig(0))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Stream().Close()
	ctx := context.Background()

	p.decodeOne(ctx)
	p.decodeOne(ctx)
	if e.DisplayQueued() != 2 {
		t.Fatalf("queued = %d", e.DisplayQueued())
	}

	clk.Set(30000)
	p.Seek(100)
	if err := p.decodeOne(ctx); err != nil {
		t.Fatal(err)
	}
	// the old seek picture survives the flush, its follower does not
	if e.DisplayQueued() != 2 {
		t.Fatalf("queued = %d after seek, want 2", e.DisplayQueued())
	}
	if p.n != 101 {
		t.Errorf("next picture = %d, want 101", p.n)
	}
	if got := e.Stats().Discarded; got != 1 {
		t.Errorf("discarded = %d, want 1", got)
	}
}

func TestPatternFlushDecoder(t *testing.T) {
	e, _ := newEngine(t, 2)
	p, err := NewPattern(e, testConfig(0))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Stream().Close()
	p.FlushDecoder()
	p.FlushDecoder()
	if p.Flushes() != 2 {
		t.Errorf("flushes = %d", p.Flushes())
	}
}

func TestPatternInvalidSize(t *testing.T) {
	e, _ := newEngine(t, 1)
	cfg := testConfig(0)
	cfg.Width = 0
	if _, err := NewPattern(e, cfg); err == nil {
		t.Error("expected an error")
	}
}

func TestFillBars(t *testing.T) {
	for _, format := range []frame.Format{frame.FormatYV12, frame.FormatYUY2, frame.FormatRGBA} {
		t.Run(format.String(), func(t *testing.T) {
			f := frame.New(0, nil)
			if err := f.AllocPlanes(64, 4, format); err != nil {
				t.Fatal(err)
			}
			fillBars(f, 0)

			step := 1
			switch format {
			case frame.FormatYUY2:
				step = 2
			case frame.FormatRGBA:
				step = 4
			}
			left, right := f.Planes[0][0], f.Planes[0][63*step]
			if left != 16 || right != 226 {
				t.Errorf("bars = %d..%d, want 16..226", left, right)
			}

			fillBars(f, 8)
			if f.Planes[0][0] == left {
				t.Error("pattern did not move")
			}
		})
	}
}

func TestCopyZPixmap(t *testing.T) {
	f := frame.New(0, nil)
	if err := f.AllocPlanes(2, 2, frame.FormatRGBA); err != nil {
		t.Fatal(err)
	}
	// BGRX
	data := []byte{
		1, 2, 3, 0, 4, 5, 6, 0,
		7, 8, 9, 0, 10, 11, 12, 0,
	}
	if err := copyZPixmap(f, data, 24); err != nil {
		t.Fatal(err)
	}
	want := []byte{3, 2, 1, 255, 6, 5, 4, 255}
	for i, v := range want {
		if f.Planes[0][i] != v {
			t.Fatalf("row 0 = %v, want %v", f.Planes[0][:8], want)
		}
	}
	if px := f.Planes[0][f.Pitches[0]+4:][:4]; px[0] != 12 || px[2] != 10 {
		t.Errorf("pixel (1,1) = %v", px)
	}

	if err := copyZPixmap(f, data, 16); err == nil {
		t.Error("expected an error for depth 16")
	}
	if err := copyZPixmap(f, data[:8], 24); err == nil {
		t.Error("expected an error for a short image")
	}
}

func TestX11GrabRegistered(t *testing.T) {
	e, _ := newEngine(t, 2)
	cfg := testConfig(0)
	cfg.Kind = "x11grab"
	src, err := New(e, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if src.Name() != "x11grab" || e.NumStreams() != 1 {
		t.Errorf("name = %s streams = %d", src.Name(), e.NumStreams())
	}
}
