package engine

import (
	"math"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

// noDeadline means popNext has nothing to wait for
const noDeadline int64 = math.MinInt64

// popNext picks the frame to show at now from the Ready queue. It returns
// the frame with its render and backup references, or nil and the vpts at
// which to look again. Late frames are dropped on the way.
func (e *Engine) popNext(now int64) (*frame.Frame, int64) {
	for e.ready.Len() > 0 {
		head := e.ready.Front()

		if head.FirstAfterSeek {
			// seek brake: show the new position as soon as the decoder lets
			// go of the frame, its time comes, or the brake budget runs out
			if e.brakeStart.IsZero() {
				e.brakeStart = time.Now()
			}
			if head.Refs() <= 2 || head.VPTS <= now || time.Since(e.brakeStart) >= e.opts.seekBrakeBudget() {
				e.brakeStart = time.Time{}
				e.ready.PopFront()
				head.VPTS = now
				e.schedClock = now + e.durationOf(head)
				return head, 0
			}
			return nil, now + clock.Ticks(e.opts.SeekBrakeDelay)
		}

		if head.VPTS < e.lastShown {
			e.ready.PopFront()
			e.discardLate(head, now)
			continue
		}

		dur := e.durationOf(head)
		diff := now - head.VPTS
		switch {
		case diff < 0:
			return nil, head.VPTS
		case diff <= dur:
			e.ready.PopFront()
			e.schedClock = head.VPTS + dur
			return head, 0
		case e.ready.Len() == 1 && diff <= dur+e.opts.LastFrameGrace:
			e.ready.PopFront()
			e.schedClock = now + dur
			return head, 0
		}

		e.ready.PopFront()
		e.discardLate(head, now)
	}
	return nil, noDeadline
}

// discardLate drops a frame that missed its slot. When it was the last one
// queued it is kept as the still backup so the screen has something to redraw.
func (e *Engine) discardLate(f *frame.Frame, now int64) {
	e.dequeued(f)
	e.countDiscarded(f)
	e.log.Debug().
		Int64("vpts", f.VPTS).
		Int64("late", now-f.VPTS).
		Msg("Discarding late frame")

	if e.ready.Len() == 0 && f.VPTS >= e.lastShown {
		f.Release()
		e.setLastFrame(f)
		return
	}
	f.Release()
	f.Release()
}

// durationOf is the frame's own duration, else the gap to the next queued
// frame, else the default
func (e *Engine) durationOf(f *frame.Frame) int64 {
	if f.Duration > 0 {
		return f.Duration
	}
	if e.ready.Len() > 1 && e.ready.Front() == f {
		if gap := e.ready.At(1).VPTS - f.VPTS; gap > 0 {
			return gap
		}
	}
	return e.opts.DefaultDuration
}

// nextDeadline returns the vpts the loop should wake up at. With nothing
// queued it uses the schedule clock, repairing it when it drifted more than
// two frame intervals away from now.
func (e *Engine) nextDeadline(now, wakeAt int64) int64 {
	if wakeAt != noDeadline {
		return wakeAt
	}
	if e.ready.Len() > 0 {
		return e.ready.Front().VPTS
	}

	interval := e.opts.DefaultDuration
	if d := e.schedClock - now; d > 2*interval || d < -2*interval {
		e.display.Lock()
		next := e.display.Front()
		var nextVPTS int64
		if next != nil {
			nextVPTS = next.VPTS
		}
		e.display.Unlock()

		if next != nil && nextVPTS > now-2*interval && nextVPTS < now+2*interval {
			e.schedClock = nextVPTS
		} else {
			e.log.Debug().
				Int64("sched", e.schedClock).
				Int64("now", now).
				Msg("Schedule clock out of range, re-deriving")
			e.schedClock = now + interval
		}
	}
	return e.schedClock
}

// sleepFor converts a vpts deadline into a wall-clock wait at the current
// speed, clamped to MaxSleep
func (e *Engine) sleepFor(now, deadline int64, speed clock.Speed) time.Duration {
	if speed.Paused() {
		return min(e.opts.StillInterval, e.opts.MaxSleep)
	}
	ticks := deadline - now
	if ticks <= 0 {
		return 0
	}
	d := clock.Duration(ticks)
	if speed != clock.SpeedNormal && speed > 0 {
		d = d * time.Duration(clock.SpeedNormal) / time.Duration(speed)
	}
	return min(d, e.opts.MaxSleep)
}
