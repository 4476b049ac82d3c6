package engine

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/convert"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// GrabOptions configure a grab request stream
type GrabOptions struct {
	// WaitNext waits for the next displayed frame instead of copying the
	// one on screen
	WaitNext bool
	Timeout  time.Duration
	// Width and Height scale the converted image when both are set
	Width  int
	Height int
	// Crop applies the frame's crop margins before scaling
	Crop   bool
	Scaler string
}

type grabRequest struct {
	id string
	ch chan *frame.Frame
}

// Grabber issues grab requests and caches the RGBA conversion between them
type Grabber struct {
	e    *Engine
	opts GrabOptions

	mu     sync.Mutex
	rgba   *image.RGBA
	out    *image.RGBA
	srcW   int
	srcH   int
	scaler draw.Scaler
}

// Capture is a private copy of a displayed frame
type Capture struct {
	VPTS   int64
	PTS    int64
	Width  int
	Height int
	Format frame.Format

	f *frame.Frame
	g *Grabber
}

// NewGrabber creates a request stream with fixed options
func (e *Engine) NewGrabber(opts GrabOptions) *Grabber {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Grabber{e: e, opts: opts, scaler: convert.ScalerByName(opts.Scaler)}
}

// Grab copies the frame on screen, or with WaitNext the next one displayed.
// It returns ErrNotAvailable when there is none or the wait timed out.
func (g *Grabber) Grab(ctx context.Context) (*Capture, error) {
	var f *frame.Frame
	if g.opts.WaitNext {
		var err error
		if f, err = g.e.waitNextFrame(ctx, g.opts.Timeout); err != nil {
			return nil, err
		}
	} else if f = g.e.lastFrameRef(); f == nil {
		return nil, ErrNotAvailable
	}
	defer f.Release()

	c := &Capture{
		VPTS:   f.VPTS,
		PTS:    f.PTS,
		Width:  f.Width,
		Height: f.Height,
		Format: f.Format,
		g:      g,
	}
	cp := frame.New(-1, nil)
	if err := cp.AllocPlanes(f.Width, f.Height, f.Format); err != nil {
		return nil, fmt.Errorf("grab: %w", err)
	}
	if err := frame.CopyPixels(cp, f); err != nil {
		return nil, fmt.Errorf("grab: %w", err)
	}
	cp.Ratio = f.Ratio
	if g.opts.Crop {
		cp.Crop = f.Crop
	}
	c.f = cp
	return c, nil
}

// waitNextFrame queues a request the render loop answers with the next
// displayed frame and one reference to it
func (e *Engine) waitNextFrame(ctx context.Context, timeout time.Duration) (*frame.Frame, error) {
	req := &grabRequest{id: uuid.NewString(), ch: make(chan *frame.Frame, 1)}

	e.lastMu.Lock()
	e.grabReqs = append(e.grabReqs, req)
	e.lastMu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f := <-req.ch:
		return f, nil
	case <-t.C:
	case <-ctx.Done():
	}

	e.lastMu.Lock()
	for i, r := range e.grabReqs {
		if r == req {
			e.grabReqs = append(e.grabReqs[:i], e.grabReqs[i+1:]...)
			break
		}
	}
	e.lastMu.Unlock()

	// delivered between the timeout and the unlink
	select {
	case f := <-req.ch:
		f.Release()
	default:
	}

	e.log.Debug().Str("request", req.id).Dur("timeout", timeout).Msg("Grab request timed out")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotAvailable
}

// deliverGrabs answers every pending request with f
func (e *Engine) deliverGrabs(f *frame.Frame) {
	e.lastMu.Lock()
	reqs := e.grabReqs
	e.grabReqs = nil
	for _, r := range reqs {
		r.ch <- f.Ref()
	}
	e.lastMu.Unlock()
}

// PendingGrabs returns the number of requests waiting for the next frame
func (e *Engine) PendingGrabs() int {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	return len(e.grabReqs)
}

// Frame returns the captured pixels as a detached frame
func (c *Capture) Frame() *frame.Frame {
	return c.f
}

// Image converts the capture to RGBA with the grabber's crop and scaling.
// The result is owned by the grabber and reused by its next conversion
// while the source size stays the same.
func (c *Capture) Image() (*image.RGBA, error) {
	return c.g.convert(c.f)
}

func (g *Grabber) convert(f *frame.Frame) (*image.RGBA, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f.Width != g.srcW || f.Height != g.srcH {
		g.rgba = nil
		g.srcW, g.srcH = f.Width, f.Height
	}

	rgba, err := convert.Into(g.rgba, f)
	if err != nil {
		return nil, err
	}
	g.rgba = rgba

	if g.opts.Width <= 0 || g.opts.Height <= 0 {
		return rgba, nil
	}
	if g.out == nil {
		g.out = image.NewRGBA(image.Rect(0, 0, g.opts.Width, g.opts.Height))
	}
	g.scaler.Scale(g.out, g.out.Bounds(), rgba, rgba.Bounds(), draw.Src, nil)
	return g.out, nil
}
