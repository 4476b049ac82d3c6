// Package engine is the frame pool and display scheduler.
//
// Decoders Acquire a frame, fill its planes and Draw it. The render loop
// moves drawn frames from the shared Display queue into its private Ready
// queue, decides for each one whether to show it, wait, or drop it against
// the presentation clock, and hands shown frames to the output driver.
//
// Reference counting: Acquire returns a frame with one reference owned by
// the caller. Draw adds two more, one consumed by the driver when the frame
// is displayed and one held by the last-frame slot until a newer frame
// supersedes it. A frame whose count drops to zero is back in the Free queue.
//
// Lock order is Display then Free. The last-frame lock may be taken before
// Free but never while holding Display. driverMu is never taken while
// holding Free.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/bryanchriswhite/FramePacer/internal/output"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
	"github.com/rs/zerolog"
)

// SpeedSetter is implemented by clocks the engine may pause for stepping
type SpeedSetter interface {
	SetSpeed(clock.Speed)
}

// Engine owns the frame pool, the queues and the render loop
type Engine struct {
	opts Options
	clk  clock.Clock
	log  *zerolog.Logger

	driverMu  sync.RWMutex
	driver    output.Driver
	driverGen atomic.Uint64
	// picture holds normalized values set through properties, re-applied
	// when the driver is replaced
	picture map[output.Property]int

	overlay atomic.Pointer[overlay.Manager]

	frames  []*frame.Frame
	free    *frame.Queue
	display *frame.Queue

	// guarded by the display lock
	discardDepth int
	discardEpoch uint64
	filler       *frame.Frame
	drainWaiters []chan struct{}
	step         *stepRequest
	crop         frame.Crop

	// lastMu guards the last displayed frame and pending grabs
	lastMu    sync.Mutex
	lastFrame *frame.Frame
	grabReqs  []*grabRequest

	streamsMu sync.RWMutex
	streams   map[string]*Stream

	stats  statsWindow
	events eventBus

	trigger chan struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	closed  atomic.Bool

	// render loop private
	ready       frame.List
	seenEpoch   uint64
	schedClock  int64
	lastShown   int64
	brakeStart  time.Time
	lastStillAt int64
	// lastStillTime is when a still was last redrawn
	lastStillTime time.Time
}

// New allocates the frame pool. The driver must already be open.
func New(clk clock.Clock, drv output.Driver, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:      opts,
		clk:       clk,
		log:       logger.WithComponent("engine"),
		driver:    drv,
		picture:   make(map[output.Property]int),
		free:      frame.NewQueue(),
		display:   frame.NewQueue(),
		streams:   make(map[string]*Stream),
		trigger:   make(chan struct{}, 1),
		lastShown: math.MinInt64,
	}
	e.events.init()

	e.frames = make([]*frame.Frame, opts.PoolSize)
	for i := range e.frames {
		f := frame.New(i, e)
		e.frames[i] = f
		e.free.PushBack(f)
	}

	e.log.Info().
		Int("pool_size", opts.PoolSize).
		Str("driver", drv.Name()).
		Int64("grace", opts.LastFrameGrace).
		Msg("Engine created")
	return e
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// Clock returns the presentation clock the engine schedules against
func (e *Engine) Clock() clock.Clock {
	return e.clk
}

// SetOverlay attaches an overlay manager, or detaches it when nil
func (e *Engine) SetOverlay(m *overlay.Manager) {
	e.overlay.Store(m)
	e.wake()
}

// Driver returns the current output driver
func (e *Engine) Driver() output.Driver {
	e.driverMu.RLock()
	defer e.driverMu.RUnlock()
	return e.driver
}

// driverTicket returns the driver together with its generation
func (e *Engine) driverTicket() (output.Driver, uint64) {
	e.driverMu.RLock()
	defer e.driverMu.RUnlock()
	return e.driver, e.driverGen.Load()
}

// ReplaceDriver swaps the output device. Blocked acquirers wake up and
// frames are reformatted for the new driver as they are reissued. The old
// driver is returned for the caller to close.
func (e *Engine) ReplaceDriver(drv output.Driver) output.Driver {
	e.driverMu.Lock()
	old := e.driver
	e.driver = drv
	e.driverGen.Add(1)
	for p, v := range e.picture {
		if r, ok := drv.PropertyRange(p); ok {
			drv.SetProperty(p, denormalize(r, v))
		}
	}
	e.driverMu.Unlock()

	e.free.Lock()
	e.free.Broadcast()
	e.free.Unlock()
	e.wake()

	e.log.Info().Str("old", old.Name()).Str("new", drv.Name()).Msg("Output driver replaced")
	return old
}

// Start launches the render loop
func (e *Engine) Start() error {
	if e.closed.Load() {
		return ErrEngineStopped
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return fmt.Errorf("render loop already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	go e.loop(ctx, e.done)
	e.log.Info().Msg("Render loop started")
	return nil
}

// Stop ends the render loop. Queued frames stay queued.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.cancel()
	done := e.done
	e.running = false
	e.runMu.Unlock()

	<-done
	e.log.Info().Msg("Render loop stopped")
}

// Running reports whether the render loop is active
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// Close stops the loop and returns every queued and retained frame to the
// pool. Acquire fails with ErrEngineStopped afterwards.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.Stop()

	e.display.Lock()
	for _, f := range e.display.TakeAll() {
		e.dropQueued(f)
	}
	for _, f := range e.ready.TakeAll() {
		e.dropQueued(f)
	}
	if e.filler != nil {
		e.filler.Release()
		e.filler.Release()
		e.filler = nil
	}
	e.closeDrainWaitersLocked()
	e.display.Unlock()

	e.setLastFrame(nil)

	e.free.Lock()
	e.free.Broadcast()
	e.free.Unlock()
	e.log.Info().Msg("Engine closed")
}

// wake nudges the render loop. Extra wakeups are harmless: the loop only
// re-evaluates its queues and goes back to sleep.
func (e *Engine) wake() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// setLastFrame stores f as the still/grab backup, taking over one reference
// the caller already holds, and drops the previous backup
func (e *Engine) setLastFrame(f *frame.Frame) {
	e.lastMu.Lock()
	prev := e.lastFrame
	e.lastFrame = f
	e.lastMu.Unlock()
	if prev != nil {
		prev.Release()
	}
}

// lastFrameRef returns the backup frame with an extra reference, or nil
func (e *Engine) lastFrameRef() *frame.Frame {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	if e.lastFrame == nil {
		return nil
	}
	return e.lastFrame.Ref()
}

func (e *Engine) hasLastFrame() bool {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	return e.lastFrame != nil
}
