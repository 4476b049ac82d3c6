package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
)

// Mode is the flush/pause controller state
type Mode int

const (
	ModeNormal Mode = iota
	ModeDiscarding
	ModePaused
	ModeSingleStep
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDiscarding:
		return "discarding"
	case ModePaused:
		return "paused"
	case ModeSingleStep:
		return "single_step"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// State is a snapshot of the controller
type State struct {
	Mode         Mode   `json:"-"`
	ModeName     string `json:"mode"`
	DiscardDepth int    `json:"discard_depth"`
	Speed        int    `json:"speed"`
}

type stepRequest struct {
	done      chan struct{}
	abandoned atomic.Bool
}

// State returns the current controller state. A flush in progress wins
// over a pending step, which wins over pause.
func (e *Engine) State() State {
	e.display.Lock()
	depth := e.discardDepth
	stepping := e.step != nil
	e.display.Unlock()

	speed := e.clk.Speed()
	s := State{DiscardDepth: depth, Speed: int(speed)}
	switch {
	case depth > 0:
		s.Mode = ModeDiscarding
	case stepping:
		s.Mode = ModeSingleStep
	case speed.Paused():
		s.Mode = ModePaused
	default:
		s.Mode = ModeNormal
	}
	s.ModeName = s.Mode.String()
	return s
}

// DiscardFrames enters (on) or leaves a flush and returns the new depth.
// Flushes nest; scheduling resumes when the last one ends.
//
// Entering releases every queued frame except first-after-seek ones, which
// are kept and rescheduled for now. Leaving the outermost flush queues the
// filler frame when nothing newer arrived.
func (e *Engine) DiscardFrames(on bool) int {
	now := e.clk.CurrentTime()

	e.display.Lock()
	if on {
		e.discardDepth++
		e.discardEpoch++
		for _, f := range e.display.TakeAll() {
			if f.FirstAfterSeek {
				f.VPTS = now
				e.display.PushBack(f)
				continue
			}
			e.dropQueued(f)
		}
	} else if e.discardDepth > 0 {
		e.discardDepth--
		if e.discardDepth == 0 && e.filler != nil {
			filler := e.filler
			e.filler = nil
			if e.display.Len() == 0 {
				filler.FirstAfterSeek = true
				filler.VPTS = now
				e.enqueueLocked(filler)
			} else {
				e.countDiscarded(filler)
				filler.Release()
				filler.Release()
			}
		}
	} else {
		e.log.Warn().Msg("DiscardFrames(false) without a matching DiscardFrames(true)")
	}
	depth := e.discardDepth
	e.display.Unlock()

	e.wake()
	e.log.Debug().Bool("on", on).Int("depth", depth).Msg("Discard frames")
	return depth
}

// DiscardDepth returns how many flushes are in progress
func (e *Engine) DiscardDepth() int {
	e.display.Lock()
	defer e.display.Unlock()
	return e.discardDepth
}

// drainedLocked reports whether Display is empty and Ready holds nothing
// but first-after-seek frames. Only the render loop, or a caller holding
// runMu while the loop is stopped, may call it.
func (e *Engine) drainedLocked() bool {
	if e.display.Len() > 0 {
		return false
	}
	for i := 0; i < e.ready.Len(); i++ {
		if !e.ready.At(i).FirstAfterSeek {
			return false
		}
	}
	return true
}

func (e *Engine) notifyDrainedLocked() {
	if len(e.drainWaiters) == 0 || !e.drainedLocked() {
		return
	}
	e.closeDrainWaitersLocked()
}

func (e *Engine) closeDrainWaitersLocked() {
	for _, ch := range e.drainWaiters {
		close(ch)
	}
	e.drainWaiters = nil
}

// WaitDrained blocks until the Display and Ready queues are empty, apart from
// first-after-seek frames. With the render loop stopped the queues are
// drained inline, which only makes progress during a flush.
func (e *Engine) WaitDrained(ctx context.Context) error {
	ch := make(chan struct{})

	e.runMu.Lock()
	running := e.running
	e.display.Lock()
	if !running {
		for _, f := range e.display.TakeAll() {
			e.ready.PushBack(f)
		}
		if e.discardDepth > 0 || e.discardEpoch != e.seenEpoch {
			e.seenEpoch = e.discardEpoch
			e.dropReadyLocked()
		}
	}
	if !running && e.drainedLocked() {
		close(ch)
	} else {
		// the render loop checks on its next pass
		e.drainWaiters = append(e.drainWaiters, ch)
	}
	e.display.Unlock()
	e.runMu.Unlock()

	e.wake()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		e.display.Lock()
		for i, w := range e.drainWaiters {
			if w == ch {
				e.drainWaiters = append(e.drainWaiters[:i], e.drainWaiters[i+1:]...)
				break
			}
		}
		e.display.Unlock()
		return ctx.Err()
	}
}

// Flush drops everything queued and returns once the queues are drained.
// It cannot be abandoned midway.
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return ErrEngineStopped
	}
	e.DiscardFrames(true)
	err := e.WaitDrained(context.Background())
	e.DiscardFrames(false)
	return err
}

func (e *Engine) speedSetter() (SpeedSetter, error) {
	ss, ok := e.clk.(SpeedSetter)
	if !ok {
		return nil, ErrClockFixed
	}
	return ss, nil
}

// Pause stops the presentation clock. The render loop keeps redrawing the
// last picture.
func (e *Engine) Pause() error {
	ss, err := e.speedSetter()
	if err != nil {
		return err
	}
	ss.SetSpeed(clock.SpeedPause)
	e.wake()
	return nil
}

// Resume restarts the clock at normal speed
func (e *Engine) Resume() error {
	ss, err := e.speedSetter()
	if err != nil {
		return err
	}
	ss.SetSpeed(clock.SpeedNormal)
	e.wake()
	return nil
}

// SingleStep pauses playback if needed and shows exactly one queued frame,
// moving the clock to its vpts. It fails with ErrStepTimeout when the render
// loop does not honor the request in time.
func (e *Engine) SingleStep(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineStopped
	}
	if !e.clk.Speed().Paused() {
		if err := e.Pause(); err != nil {
			return fmt.Errorf("single step: %w", err)
		}
	}

	req := &stepRequest{done: make(chan struct{})}
	e.display.Lock()
	e.step = req
	e.display.Unlock()
	e.wake()

	t := time.NewTimer(e.opts.StepTimeout)
	defer t.Stop()
	select {
	case <-req.done:
		return nil
	case <-t.C:
	case <-ctx.Done():
	}

	req.abandoned.Store(true)
	e.display.Lock()
	if e.step == req {
		e.step = nil
	}
	e.display.Unlock()

	// the loop may have honored it while we were giving up
	select {
	case <-req.done:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrStepTimeout
}
