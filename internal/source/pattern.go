package source

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/rs/zerolog"
)

// noSeek marks that no seek is pending
const noSeek = -1

// Pattern is a synthetic decoder drawing moving vertical bars. It decodes
// as fast as the pool lets it; the scheduler does the pacing.
type Pattern struct {
	e      *engine.Engine
	cfg    Config
	dur    int64
	stream *engine.Stream
	log    *zerolog.Logger

	n       int64
	drawn   int
	seekTo  atomic.Int64
	flushes atomic.Uint64
}

// NewPattern creates a pattern source and attaches its stream
func NewPattern(e *engine.Engine, cfg Config) (*Pattern, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("pattern: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Format == frame.FormatNone {
		cfg.Format = frame.FormatYV12
	}
	p := &Pattern{
		e:   e,
		cfg: cfg,
		dur: cfg.FrameDuration(),
		log: logger.WithComponent("source"),
	}
	p.seekTo.Store(noSeek)
	p.stream = e.OpenStream(engine.StreamOptions{
		Name:     "pattern",
		Metronom: clock.NewMetronom(e.Clock(), cfg.Prebuffer, p.dur),
		Flusher:  p,
	})
	return p, nil
}

func (p *Pattern) Name() string {
	return "pattern"
}

// Stream returns the engine stream the pattern draws into
func (p *Pattern) Stream() *engine.Stream {
	return p.stream
}

// Run draws pictures until ctx is done or Frames have been drawn
func (p *Pattern) Run(ctx context.Context) error {
	defer p.stream.Close()

	p.log.Info().
		Int("width", p.cfg.Width).
		Int("height", p.cfg.Height).
		Str("format", p.cfg.Format.String()).
		Int("fps", p.cfg.FPS).
		Msg("Pattern source started")

	for {
		if p.cfg.Frames > 0 && p.drawn >= p.cfg.Frames {
			p.stream.MarkEOF()
			p.log.Info().Int("frames", p.drawn).Msg("Pattern source finished")
			return nil
		}
		if err := p.decodeOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, engine.ErrEngineStopped) {
				return nil
			}
			return err
		}
	}
}

// Seek restarts the pattern at picture n. The engine is flushed and the next
// picture is marked as the first after a seek.
func (p *Pattern) Seek(n int64) {
	p.seekTo.Store(max(n, 0))
}

// FlushDecoder implements engine.DecoderFlusher. The pattern holds no
// pictures back, so there is nothing to push out.
func (p *Pattern) FlushDecoder() {
	p.flushes.Add(1)
	p.log.Debug().Msg("Flush requested")
}

// Flushes returns how often the engine asked for a flush
func (p *Pattern) Flushes() uint64 {
	return p.flushes.Load()
}

func (p *Pattern) applySeek() {
	n := p.seekTo.Swap(noSeek)
	if n == noSeek {
		return
	}
	p.e.DiscardFrames(true)
	p.n = n
	p.stream.Discontinuity()
	p.e.DiscardFrames(false)
	p.log.Debug().Int64("picture", n).Msg("Seek")
}

// decodeOne produces a single picture
func (p *Pattern) decodeOne(ctx context.Context) error {
	p.applySeek()

	f, err := p.e.Acquire(ctx, frame.Params{
		Width:  p.cfg.Width,
		Height: p.cfg.Height,
		Format: p.cfg.Format,
		Flags:  frame.FlagProgressive,
	})
	if err != nil {
		return err
	}

	fillBars(f, p.n)
	f.PTS = p.n * p.dur
	f.Duration = p.dur
	skip := f.Draw(p.stream)
	f.Free()

	p.n++
	p.drawn++
	if skip > 0 {
		// a real decoder would drop pictures before decoding them
		p.n += int64(skip)
		p.stream.ReportSkipped(skip)
		p.log.Debug().Int("skip", skip).Msg("Behind the clock, skipping")
	}
	return nil
}

// fillBars paints eight vertical luma bars shifted by picture n
func fillBars(f *frame.Frame, n int64) {
	shift := int(n*4) % max(f.Width, 1)
	luma := func(x int) byte {
		return byte(16 + ((x+shift)%f.Width*8/f.Width)*30)
	}

	switch f.Format {
	case frame.FormatYV12:
		for y := 0; y < f.Height; y++ {
			row := f.Planes[0][y*f.Pitches[0]:]
			for x := 0; x < f.Width; x++ {
				row[x] = luma(x)
			}
		}
		fill(f.Planes[1], 128)
		fill(f.Planes[2], 128)
	case frame.FormatYUY2:
		for y := 0; y < f.Height; y++ {
			row := f.Planes[0][y*f.Pitches[0]:]
			for x := 0; x < f.Width; x++ {
				row[x*2] = luma(x)
				row[x*2+1] = 128
			}
		}
	case frame.FormatRGBA:
		for y := 0; y < f.Height; y++ {
			row := f.Planes[0][y*f.Pitches[0]:]
			for x := 0; x < f.Width; x++ {
				v := luma(x)
				row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = v, v, v, 0xff
			}
		}
	}
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
