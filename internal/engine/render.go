package engine

import (
	"context"
	"math"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
)

// loop is the render goroutine. It sleeps until the next deadline, MaxSleep,
// or a wakeup, whichever comes first.
func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		wait := e.renderOnce()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-e.trigger:
		case <-t.C:
		}
		t.Stop()
	}
}

// renderOnce runs one scheduling pass and returns how long to sleep
func (e *Engine) renderOnce() time.Duration {
	discarding, step := e.migrate()
	if step != nil {
		e.doStep(step)
	}
	if discarding {
		return e.opts.MaxSleep
	}

	now := e.clk.CurrentTime()
	speed := e.clk.Speed()

	if speed.Paused() {
		if e.redrawWanted() || now != e.lastStillAt || e.stillDue() {
			e.redrawStill(now)
		}
		return e.sleepFor(now, now, speed)
	}

	f, wakeAt := e.popNext(now)
	if f != nil {
		e.present(f)
	} else {
		if e.ready.Len() == 0 {
			e.checkStarvation()
		}
		if e.redrawWanted() {
			e.redrawStill(now)
		}
	}
	return e.sleepFor(now, e.nextDeadline(now, wakeAt), speed)
}

// migrate moves Display into Ready under the display lock, drops what a
// flush asked to drop, picks up a step request and wakes drain waiters
func (e *Engine) migrate() (discarding bool, step *stepRequest) {
	e.display.Lock()
	defer e.display.Unlock()

	for _, f := range e.display.TakeAll() {
		e.ready.PushBack(f)
	}

	discarding = e.discardDepth > 0
	if discarding || e.discardEpoch != e.seenEpoch {
		e.seenEpoch = e.discardEpoch
		e.dropReadyLocked()
	}
	if !discarding {
		step, e.step = e.step, nil
	}
	e.notifyDrainedLocked()
	return discarding, step
}

// dropReadyLocked releases every Ready frame except first-after-seek ones
func (e *Engine) dropReadyLocked() {
	kept := frame.List{}
	for _, f := range e.ready.TakeAll() {
		if f.FirstAfterSeek {
			kept.PushBack(f)
			continue
		}
		e.dropQueued(f)
	}
	for _, f := range kept.TakeAll() {
		e.ready.PushBack(f)
	}
	e.lastShown = math.MinInt64
	e.brakeStart = time.Time{}
}

// present shows f. It takes over both of f's queue references: the backup
// slot keeps one and the driver consumes the other.
func (e *Engine) present(f *frame.Frame) {
	e.lastShown = f.VPTS
	if st, ok := f.Stream.(*Stream); ok {
		st.shown(f.VPTS)
	}
	e.dequeued(f)
	e.stats.displayed.Add(1)

	e.setLastFrame(f)
	e.deliverGrabs(f)

	drv := e.Driver()
	if layers := e.composeOverlay(f); layers != nil {
		drv.OverlayBlend(f, layers)
	}
	drv.DisplayFrame(f)
}

// composeOverlay renders the attached overlay for f's geometry
func (e *Engine) composeOverlay(f *frame.Frame) []overlay.Layer {
	m := e.overlay.Load()
	if m == nil {
		return nil
	}
	return m.Compose(f.Width, f.Height)
}

// redrawWanted reports whether the driver or the overlay want the picture again
func (e *Engine) redrawWanted() bool {
	if e.Driver().RedrawNeeded() {
		return true
	}
	m := e.overlay.Load()
	return m != nil && m.Changed()
}

func (e *Engine) stillDue() bool {
	return time.Since(e.lastStillTime) >= e.opts.StillInterval
}

// redrawStill shows a copy of the last frame. The copy has one reference,
// which the driver consumes, so the backup slot is left alone.
func (e *Engine) redrawStill(now int64) {
	src := e.lastFrameRef()
	if src == nil {
		return
	}
	dup := e.duplicate(src)
	src.Release()
	if dup == nil {
		e.log.Debug().Msg("No frame available for still redraw")
		return
	}
	dup.VPTS = now
	e.lastStillAt = now
	e.lastStillTime = time.Now()
	e.stats.duplicated.Add(1)
	e.deliverGrabs(dup)

	drv := e.Driver()
	if layers := e.composeOverlay(dup); layers != nil {
		drv.OverlayBlend(dup, layers)
	}
	drv.DisplayFrame(dup)
}

// doStep shows exactly one queued frame and moves the clock to it
func (e *Engine) doStep(req *stepRequest) {
	if req.abandoned.Load() {
		return
	}
	f := e.ready.PopFront()
	if f == nil {
		// nothing queued yet, keep the request for the next pass
		e.display.Lock()
		if e.step == nil && !req.abandoned.Load() {
			e.step = req
		}
		e.display.Unlock()
		return
	}
	e.present(f)
	e.clk.AdjustClock(f.VPTS)
	e.lastStillAt = f.VPTS
	close(req.done)
	e.log.Debug().Int64("vpts", f.VPTS).Msg("Single step")
}

// checkStarvation nudges decoders that stopped delivering while the queues
// are empty and a picture is on screen
func (e *Engine) checkStarvation() {
	if !e.opts.StarvationFlush || !e.hasLastFrame() {
		return
	}
	for _, st := range e.streamList() {
		if st.flusher == nil || st.eof.Load() {
			continue
		}
		if st.sinceDelivery() > e.opts.StarvationTimeout && st.nudged.CompareAndSwap(false, true) {
			e.log.Debug().Str("stream", st.id).Msg("Decoder starving, requesting flush")
			st.flusher.FlushDecoder()
		}
	}
}
