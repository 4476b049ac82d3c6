package engine

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DecoderFlusher is implemented by decoders that can push out frames held
// in their pipeline. FlushDecoder must not block.
type DecoderFlusher interface {
	FlushDecoder()
}

// StreamOptions describe a stream being attached
type StreamOptions struct {
	Name string
	// Metronom stamps VPTS on drawn frames when set
	Metronom *clock.Metronom
	Flusher  DecoderFlusher
}

// Stream is one playback session drawing into the engine
type Stream struct {
	id       string
	name     string
	e        *Engine
	metronom *clock.Metronom
	flusher  DecoderFlusher
	log      *zerolog.Logger
	opened   time.Time

	delivered atomic.Uint64
	skipped   atomic.Uint64
	discarded atomic.Uint64
	displayed atomic.Uint64
	queued    atomic.Int64
	lastVPTS  atomic.Int64

	// lastDelivery is the unix nano time of the last draw
	lastDelivery atomic.Int64
	nudged       atomic.Bool

	firstPending atomic.Bool
	eof          atomic.Bool
	finished     atomic.Bool
}

// StreamStats is a snapshot of one stream's counters
type StreamStats struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Opened    time.Time `json:"opened"`
	Delivered uint64    `json:"delivered"`
	Skipped   uint64    `json:"skipped"`
	Discarded uint64    `json:"discarded"`
	Displayed uint64    `json:"displayed"`
	Queued    int64     `json:"queued"`
	LastVPTS  int64     `json:"last_vpts"`
	EOF       bool      `json:"eof"`
	Finished  bool      `json:"finished"`
}

// OpenStream attaches a new stream
func (e *Engine) OpenStream(opts StreamOptions) *Stream {
	id := uuid.NewString()
	s := &Stream{
		id:       id,
		name:     opts.Name,
		e:        e,
		metronom: opts.Metronom,
		flusher:  opts.Flusher,
		log:      logger.WithStream("engine", id),
		opened:   time.Now(),
	}
	s.firstPending.Store(true)
	s.lastDelivery.Store(time.Now().UnixNano())

	e.streamsMu.Lock()
	e.streams[id] = s
	n := len(e.streams)
	e.streamsMu.Unlock()

	s.log.Info().Str("name", opts.Name).Int("streams", n).Msg("Stream opened")
	return s
}

// ID implements frame.Stream
func (s *Stream) ID() string {
	return s.id
}

// Name returns the name given at open
func (s *Stream) Name() string {
	return s.name
}

// Close detaches the stream. Frames it already drew still play out.
func (s *Stream) Close() {
	s.e.streamsMu.Lock()
	delete(s.e.streams, s.id)
	s.e.streamsMu.Unlock()
	s.log.Info().Msg("Stream closed")
}

// Discontinuity marks the next drawn frame as the first after a seek
func (s *Stream) Discontinuity() {
	if s.metronom != nil {
		s.metronom.Discontinuity()
	}
	s.firstPending.Store(true)
	s.eof.Store(false)
	s.finished.Store(false)
}

// MarkEOF tells the engine no more frames follow. StreamFinished is emitted
// once the stream's queued frames have played out.
func (s *Stream) MarkEOF() {
	s.eof.Store(true)
	if s.queued.Load() == 0 {
		s.checkFinished()
	}
}

// ReportSkipped counts frames the decoder dropped on its own
func (s *Stream) ReportSkipped(n int) {
	if n <= 0 {
		return
	}
	s.skipped.Add(uint64(n))
	s.e.stats.skipped(n)
}

// Stats returns the stream's counters
func (s *Stream) Stats() StreamStats {
	return StreamStats{
		ID:        s.id,
		Name:      s.name,
		Opened:    s.opened,
		Delivered: s.delivered.Load(),
		Skipped:   s.skipped.Load(),
		Discarded: s.discarded.Load(),
		Displayed: s.displayed.Load(),
		Queued:    s.queued.Load(),
		LastVPTS:  s.lastVPTS.Load(),
		EOF:       s.eof.Load(),
		Finished:  s.finished.Load(),
	}
}

func (s *Stream) noteDelivery() {
	s.delivered.Add(1)
	s.lastDelivery.Store(time.Now().UnixNano())
	s.nudged.Store(false)
}

func (s *Stream) sinceDelivery() time.Duration {
	return time.Duration(time.Now().UnixNano() - s.lastDelivery.Load())
}

// shown is called by the render loop for each displayed frame
func (s *Stream) shown(vpts int64) {
	s.displayed.Add(1)
	s.lastVPTS.Store(vpts)
	if s.firstPending.CompareAndSwap(true, false) {
		s.log.Debug().Int64("vpts", vpts).Msg("First frame displayed")
		s.e.events.publish(Event{Type: EventFirstFrame, StreamID: s.id, VPTS: vpts})
	}
}

func (s *Stream) checkFinished() {
	if !s.eof.Load() || s.queued.Load() != 0 {
		return
	}
	if s.finished.CompareAndSwap(false, true) {
		s.log.Info().Uint64("displayed", s.displayed.Load()).Msg("Stream finished")
		s.e.events.publish(Event{Type: EventStreamFinished, StreamID: s.id, VPTS: s.lastVPTS.Load()})
	}
}

// Stream looks up an attached stream
func (e *Engine) Stream(id string) (*Stream, bool) {
	e.streamsMu.RLock()
	defer e.streamsMu.RUnlock()
	s, ok := e.streams[id]
	return s, ok
}

// NumStreams returns the number of attached streams
func (e *Engine) NumStreams() int {
	e.streamsMu.RLock()
	defer e.streamsMu.RUnlock()
	return len(e.streams)
}

// Streams returns stats for every attached stream, oldest first
func (e *Engine) Streams() []StreamStats {
	list := e.streamList()
	out := make([]StreamStats, len(list))
	for i, s := range list {
		out[i] = s.Stats()
	}
	return out
}

func (e *Engine) streamList() []*Stream {
	e.streamsMu.RLock()
	list := make([]*Stream, 0, len(e.streams))
	for _, s := range e.streams {
		list = append(list, s)
	}
	e.streamsMu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].opened.Equal(list[j].opened) {
			return list[i].id < list[j].id
		}
		return list[i].opened.Before(list[j].opened)
	})
	return list
}
