package engine

import (
	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

// duplicate copies src into another pool frame for still redraws. It never
// blocks: it only takes from Free while more than DuplicateReserve frames are
// left there, and otherwise cannibalizes a Ready frame nobody else holds.
// The copy carries one reference and no timing. It returns nil when no frame
// could be spared. Only the render loop may call it.
func (e *Engine) duplicate(src *frame.Frame) *frame.Frame {
	p := src.Params()

	var dup *frame.Frame
	e.free.Lock()
	if e.free.Len() > e.opts.DuplicateReserve {
		idx := e.free.IndexMatching(p)
		if idx < 0 {
			idx = 0
		}
		dup = e.free.RemoveAt(idx)
	}
	e.free.Unlock()

	if dup != nil {
		dup.RefN(1)
	} else {
		dup = e.cannibalize(src)
		if dup == nil {
			return nil
		}
	}

	drv, gen := e.driverTicket()
	if !dup.Matches(p) || dup.DriverGen != gen {
		drv.UpdateFrameFormat(dup, p)
		dup.DriverGen = gen
		if dup.Width == 0 {
			dup.Release()
			return nil
		}
	}
	if err := frame.CopyPixels(dup, src); err != nil {
		e.log.Debug().Err(err).Msg("Failed to copy still frame")
		dup.Release()
		return nil
	}

	dup.Reset()
	dup.Ratio = src.Ratio
	dup.Flags = src.Flags
	dup.Crop = src.Crop
	return dup
}

// cannibalize takes the newest Ready frame that only the queues reference
func (e *Engine) cannibalize(src *frame.Frame) *frame.Frame {
	for i := e.ready.Len() - 1; i >= 0; i-- {
		f := e.ready.At(i)
		if f == src || f.FirstAfterSeek {
			continue
		}
		if !f.Adopt() {
			continue
		}
		e.ready.RemoveAt(i)
		e.dequeued(f)
		e.countDiscarded(f)
		return f
	}
	return nil
}
