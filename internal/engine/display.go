package engine

import (
	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

// maxSkipSuggestion caps the skip count DrawFrame hands back to decoders
const maxSkipSuggestion = 10

// DrawFrame queues f for display. It never blocks. The caller keeps its own
// reference. The return value is how many upcoming frames the decoder should
// skip to catch up with the clock.
func (e *Engine) DrawFrame(f *frame.Frame, s frame.Stream) int {
	st, _ := s.(*Stream)
	if st != nil {
		st.noteDelivery()
	}
	// counted last so this frame's own skip or discard lands in its window
	defer e.stats.delivered(e)

	if st != nil && st.metronom != nil {
		st.metronom.Stamp(f)
	}

	if f.Bad {
		// timing went through the metronom above so the stream stays continuous
		e.stats.skipped(1)
		if st != nil {
			st.skipped.Add(1)
		}
		return 0
	}

	now := e.clk.CurrentTime()
	f.Stream = s
	f.RefN(2)

	e.display.Lock()
	f.Crop = f.Crop.Add(e.crop)
	switch {
	case e.discardDepth == 0:
		e.enqueueLocked(f)
	case f.FirstAfterSeek:
		f.VPTS = now
		e.enqueueLocked(f)
	case e.opts.FlushFiller:
		prev := e.filler
		e.filler = f
		if prev != nil {
			e.countDiscarded(prev)
			prev.Release()
			prev.Release()
		}
	default:
		e.countDiscarded(f)
		f.Release()
		f.Release()
	}
	// the render loop may own f once the lock is dropped
	skip := e.skipSuggestion(f, now)
	e.display.Unlock()

	e.wake()
	return skip
}

// skipSuggestion is the number of frame intervals f is already late by
func (e *Engine) skipSuggestion(f *frame.Frame, now int64) int {
	dur := f.Duration
	if dur <= 0 {
		dur = e.opts.DefaultDuration
	}
	late := now - f.VPTS
	if f.FirstAfterSeek || late <= dur {
		return 0
	}
	return int(min(late/dur+1, maxSkipSuggestion))
}

// enqueueLocked appends a drawn frame to Display. The display lock must be held.
func (e *Engine) enqueueLocked(f *frame.Frame) {
	if st, ok := f.Stream.(*Stream); ok {
		st.queued.Add(1)
	}
	e.display.PushBack(f)
}

// dequeued records that f left the Display/Ready queues
func (e *Engine) dequeued(f *frame.Frame) {
	if st, ok := f.Stream.(*Stream); ok {
		if st.queued.Add(-1) == 0 {
			st.checkFinished()
		}
	}
}

// dropQueued removes a queued frame without showing it
func (e *Engine) dropQueued(f *frame.Frame) {
	e.dequeued(f)
	e.countDiscarded(f)
	f.Release()
	f.Release()
}

func (e *Engine) countDiscarded(f *frame.Frame) {
	e.stats.discarded(1)
	if st, ok := f.Stream.(*Stream); ok {
		st.discarded.Add(1)
	}
}

// SetCrop replaces the crop margins added to every drawn frame
func (e *Engine) SetCrop(c frame.Crop) {
	e.display.Lock()
	e.crop = c
	e.display.Unlock()
}

// Crop returns the crop margins added to every drawn frame
func (e *Engine) Crop() frame.Crop {
	e.display.Lock()
	defer e.display.Unlock()
	return e.crop
}

// DisplayQueued returns the number of frames waiting in Display
func (e *Engine) DisplayQueued() int {
	return e.display.Count()
}
