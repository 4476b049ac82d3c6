package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

// formatRetryDelay is how long Acquire backs off after the device failed to
// provide a surface
const formatRetryDelay = 10 * time.Millisecond

// Acquire blocks until a free frame is available and returns it formatted
// for p with one reference. It prefers a frame already formatted as p.
//
// When the device cannot provide a surface the frame goes back to the pool;
// callers that set frame.FlagMayFail get ErrNoFrame, others keep retrying.
func (e *Engine) Acquire(ctx context.Context, p frame.Params) (*frame.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		e.free.Lock()
		e.free.Broadcast()
		e.free.Unlock()
	})
	defer stop()

	for {
		if e.closed.Load() {
			return nil, ErrEngineStopped
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		waitGen := e.driverGen.Load()

		e.free.Lock()
		for e.free.Len() == 0 {
			if ctx.Err() != nil || e.closed.Load() || e.driverGen.Load() != waitGen {
				break
			}
			e.free.WaitUntil(time.Now().Add(e.opts.AcquirePoll))
		}
		if e.free.Len() == 0 {
			e.free.Unlock()
			continue
		}
		idx := e.free.IndexMatching(p)
		if idx < 0 {
			idx = 0
		}
		f := e.free.RemoveAt(idx)
		e.free.Unlock()

		// the driver may have been replaced while we waited
		drv, gen := e.driverTicket()

		f.Reset()
		f.RefN(1)
		if !f.Matches(p) || f.DriverGen != gen {
			drv.UpdateFrameFormat(f, p)
			f.DriverGen = gen
		}
		if f.Width == 0 {
			f.Release()
			if p.Flags&frame.FlagMayFail != 0 {
				return nil, fmt.Errorf("acquire %dx%d %s: %w", p.Width, p.Height, p.Format, ErrNoFrame)
			}
			e.log.Debug().
				Int("width", p.Width).
				Int("height", p.Height).
				Msg("Device could not provide a surface, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(formatRetryDelay):
			}
			continue
		}
		f.Ratio = p.Ratio
		f.Flags = p.Flags & frame.FieldMask
		return f, nil
	}
}

// RecycleFrame puts a frame whose last reference was dropped back in the
// pool and wakes blocked acquirers
func (e *Engine) RecycleFrame(f *frame.Frame) {
	e.free.Put(f)
}

// PoolSize returns the number of frames in the pool
func (e *Engine) PoolSize() int {
	return len(e.frames)
}

// FreeCount returns the number of frames in the Free queue
func (e *Engine) FreeCount() int {
	return e.free.Count()
}

// InFlight returns the number of frames outside the Free queue
func (e *Engine) InFlight() int {
	return len(e.frames) - e.free.Count()
}
