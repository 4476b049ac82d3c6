// Package gstsrc decodes media through a GStreamer pipeline and draws the
// pictures into the engine. Importing it registers the "gst" source kind.
package gstsrc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/bryanchriswhite/FramePacer/internal/source"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pullTimeout bounds each appsink pull so cancellation stays responsive
const pullTimeout = 20 * time.Millisecond

var errEndOfStream = errors.New("end of stream")

var initOnce sync.Once

func init() {
	source.Register("gst", func(e *engine.Engine, cfg source.Config) (source.Source, error) {
		return New(e, cfg)
	})
}

// Source pulls I420 pictures from an appsink
type Source struct {
	e      *engine.Engine
	cfg    source.Config
	desc   string
	stream *engine.Stream
	log    *zerolog.Logger

	nudge   chan struct{}
	pulled  atomic.Uint64
	skipped atomic.Uint64
}

// New prepares a pipeline for cfg.URI, or cfg.Pipeline when given. The
// pipeline must end in an appsink named "sink" producing I420.
func New(e *engine.Engine, cfg source.Config) (*Source, error) {
	desc, err := pipelineString(cfg)
	if err != nil {
		return nil, err
	}
	s := &Source{
		e:     e,
		cfg:   cfg,
		desc:  desc,
		log:   logger.WithComponent("source"),
		nudge: make(chan struct{}, 1),
	}
	s.stream = e.OpenStream(engine.StreamOptions{
		Name:     cfg.URI,
		Metronom: clock.NewMetronom(e.Clock(), cfg.Prebuffer, cfg.FrameDuration()),
		Flusher:  s,
	})
	return s, nil
}

// pipelineString builds the decode pipeline description
func pipelineString(cfg source.Config) (string, error) {
	if cfg.Pipeline != "" {
		return cfg.Pipeline, nil
	}
	if cfg.URI == "" {
		return "", fmt.Errorf("gst source: uri or pipeline required")
	}
	if _, err := url.Parse(cfg.URI); err != nil {
		return "", fmt.Errorf("gst source: %w", err)
	}

	caps := "video/x-raw,format=I420"
	if cfg.Width > 0 && cfg.Height > 0 {
		caps += fmt.Sprintf(",width=%d,height=%d", cfg.Width, cfg.Height)
	}
	return fmt.Sprintf(
		"uridecodebin uri=%s ! "+
			"videoconvert ! videoscale ! "+
			"%s ! "+
			"appsink name=sink emit-signals=false sync=false max-buffers=4",
		cfg.URI, caps,
	), nil
}

func (s *Source) Name() string {
	return "gst"
}

// FlushDecoder implements engine.DecoderFlusher by draining whatever the
// appsink already holds on the next pass
func (s *Source) FlushDecoder() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Run plays the pipeline until ctx is done, the input ends, or the
// pipeline reports an error
func (s *Source) Run(ctx context.Context) error {
	defer s.stream.Close()
	initOnce.Do(func() { gst.Init(nil) })

	s.log.Debug().Str("pipeline", s.desc).Msg("Creating GStreamer pipeline")
	pipeline, err := gst.NewPipelineFromString(s.desc)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Unref()

	el, err := pipeline.GetElementByName("sink")
	if err != nil {
		return fmt.Errorf("failed to get appsink: %w", err)
	}
	sink := app.SinkFromElement(el)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)
	s.log.Info().Str("uri", s.cfg.URI).Msg("GStreamer source started")

	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	busErr := make(chan error, 1)
	go func() { busErr <- s.monitor(monCtx, pipeline) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-busErr:
			// drain what already reached the sink before giving up
			s.drain(ctx, sink)
			if errors.Is(err, errEndOfStream) {
				s.stream.MarkEOF()
				s.log.Info().Uint64("pictures", s.pulled.Load()).Msg("GStreamer source finished")
				return nil
			}
			return err
		case <-s.nudge:
			s.drain(ctx, sink)
			continue
		default:
		}

		sample := sink.TryPullSample(pullTimeout)
		if sample == nil {
			continue
		}
		if err := s.processSample(ctx, sample); err != nil {
			if ctx.Err() != nil || errors.Is(err, engine.ErrEngineStopped) {
				return nil
			}
			s.log.Warn().Err(err).Msg("Dropping sample")
		}
	}
}

// drain processes every sample the appsink holds without waiting
func (s *Source) drain(ctx context.Context, sink *app.Sink) {
	n := 0
	for {
		sample := sink.TryPullSample(0)
		if sample == nil {
			break
		}
		if err := s.processSample(ctx, sample); err != nil {
			break
		}
		n++
	}
	s.log.Debug().Int("samples", n).Msg("Drained appsink")
}

// monitor watches the pipeline bus. It returns errEndOfStream at the end of
// the input, the pipeline error if one is posted, or nil when ctx is done.
func (s *Source) monitor(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return errEndOfStream
		case gst.MessageError:
			gerr := msg.ParseError()
			s.log.Error().
				Str("error", gerr.Error()).
				Str("debug", gerr.DebugString()).
				Msg("Pipeline error")
			return fmt.Errorf("pipeline error: %s", gerr.Error())
		}
	}
}

// processSample copies one decoded picture into a pool frame and draws it
func (s *Source) processSample(ctx context.Context, sample *gst.Sample) error {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return fmt.Errorf("sample without buffer")
	}
	caps := sample.GetCaps()
	if caps == nil {
		return fmt.Errorf("sample without caps")
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return fmt.Errorf("caps without structure")
	}
	width, _ := structure.GetValue("width")
	height, _ := structure.GetValue("height")
	w, ok := width.(int)
	if !ok {
		return fmt.Errorf("caps without width")
	}
	h, ok := height.(int)
	if !ok {
		return fmt.Errorf("caps without height")
	}

	f, err := s.e.Acquire(ctx, frame.Params{Width: w, Height: h, Format: frame.FormatYV12})
	if err != nil {
		return err
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		f.Free()
		return fmt.Errorf("failed to map buffer")
	}
	err = copyI420(f, mapInfo.Bytes())
	buffer.Unmap()
	if err != nil {
		f.Free()
		return err
	}

	f.PTS = nanosToTicks(int64(buffer.PresentationTimestamp()))
	if d := nanosToTicks(int64(buffer.Duration())); d > 0 {
		f.Duration = d
	}
	skip := f.Draw(s.stream)
	f.Free()
	s.pulled.Add(1)

	if skip > 0 {
		// appsink cannot drop undecoded pictures, so late ones are only reported
		s.skipped.Add(uint64(skip))
		s.log.Debug().Int("skip", skip).Msg("Decoder behind the clock")
	}
	return nil
}

// nanosToTicks converts a buffer timestamp to clock ticks. Negative values
// mean the timestamp is unset.
func nanosToTicks(ns int64) int64 {
	if ns < 0 {
		return frame.NoPTS
	}
	return ns / int64(time.Microsecond) * clock.Hz / 1000000
}

// copyI420 copies a GStreamer I420 buffer with its default strides into f
func copyI420(f *frame.Frame, data []byte) error {
	w, h := f.Width, f.Height
	cw, ch := (w+1)/2, (h+1)/2
	strides := [3]int{roundUp4(w), roundUp4(cw), roundUp4(cw)}
	rows := [3]int{h, ch, ch}
	widths := [3]int{w, cw, cw}
	offsets := [3]int{0, strides[0] * ((h + 1) &^ 1)}
	offsets[2] = offsets[1] + strides[1]*ch

	for i := 0; i < 3; i++ {
		end := offsets[i] + strides[i]*(rows[i]-1) + widths[i]
		if end > len(data) {
			return fmt.Errorf("short I420 buffer: %d bytes for %dx%d", len(data), w, h)
		}
		dst := f.Planes[i]
		for y := 0; y < rows[i]; y++ {
			src := data[offsets[i]+y*strides[i]:]
			copy(dst[y*f.Pitches[i]:y*f.Pitches[i]+widths[i]], src[:widths[i]])
		}
	}
	return nil
}

func roundUp4(v int) int {
	return (v + 3) &^ 3
}
