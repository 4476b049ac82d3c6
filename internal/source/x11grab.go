package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FramePacer/internal/clock"
	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/rs/zerolog"
)

// X11Grab captures the top-left region of the X root window at a fixed rate.
// URI names the display (":0"), empty uses $DISPLAY. Width and Height of 0
// capture the whole screen.
type X11Grab struct {
	e      *engine.Engine
	cfg    Config
	dur    int64
	stream *engine.Stream
	log    *zerolog.Logger
}

// NewX11Grab attaches a stream for the capture. The X connection is made by Run.
func NewX11Grab(e *engine.Engine, cfg Config) (*X11Grab, error) {
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("x11grab: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	g := &X11Grab{
		e:   e,
		cfg: cfg,
		dur: cfg.FrameDuration(),
		log: logger.WithComponent("source"),
	}
	g.stream = e.OpenStream(engine.StreamOptions{
		Name:     "x11grab",
		Metronom: clock.NewMetronom(e.Clock(), cfg.Prebuffer, g.dur),
		Flusher:  g,
	})
	return g, nil
}

func (g *X11Grab) Name() string {
	return "x11grab"
}

// FlushDecoder implements engine.DecoderFlusher. Captures are drawn as soon
// as they are taken.
func (g *X11Grab) FlushDecoder() {}

// Run captures until ctx is done or Frames pictures were taken
func (g *X11Grab) Run(ctx context.Context) error {
	defer g.stream.Close()

	conn, err := xgb.NewConnDisplay(g.cfg.URI)
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	defer conn.Close()

	screen := xproto.Setup(conn).DefaultScreen(conn)
	w, h := g.cfg.Width, g.cfg.Height
	if w == 0 || w > int(screen.WidthInPixels) {
		w = int(screen.WidthInPixels)
	}
	if h == 0 || h > int(screen.HeightInPixels) {
		h = int(screen.HeightInPixels)
	}
	g.log.Info().
		Int("width", w).
		Int("height", h).
		Uint8("depth", screen.RootDepth).
		Msg("X11 capture started")

	ticker := time.NewTicker(clock.Duration(g.dur))
	defer ticker.Stop()
	start := time.Now()
	taken := 0

	for {
		if g.cfg.Frames > 0 && taken >= g.cfg.Frames {
			g.stream.MarkEOF()
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		reply, err := xproto.GetImage(conn, xproto.ImageFormatZPixmap, xproto.Drawable(screen.Root),
			0, 0, uint16(w), uint16(h), 0xffffffff).Reply()
		if err != nil {
			return fmt.Errorf("failed to get image: %w", err)
		}

		f, err := g.e.Acquire(ctx, frame.Params{Width: w, Height: h, Format: frame.FormatRGBA, Flags: frame.FlagProgressive})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, engine.ErrEngineStopped) {
				return nil
			}
			return err
		}
		if err := copyZPixmap(f, reply.Data, int(screen.RootDepth)); err != nil {
			f.Free()
			return err
		}
		f.PTS = clock.Ticks(time.Since(start))
		f.Duration = g.dur
		if skip := f.Draw(g.stream); skip > 0 {
			// a live capture cannot catch up, the lost ticks are only counted
			g.stream.ReportSkipped(skip)
		}
		f.Free()
		taken++
	}
}

// copyZPixmap converts a 24 or 32 bit BGRX ZPixmap into an RGBA frame
func copyZPixmap(f *frame.Frame, data []byte, depth int) error {
	if depth != 24 && depth != 32 {
		return fmt.Errorf("x11grab: unsupported depth %d", depth)
	}
	if len(data) < f.Width*f.Height*4 {
		return fmt.Errorf("x11grab: short image, %d bytes for %dx%d", len(data), f.Width, f.Height)
	}
	for y := 0; y < f.Height; y++ {
		src := data[y*f.Width*4:]
		dst := f.Planes[0][y*f.Pitches[0]:]
		for x := 0; x < f.Width; x++ {
			i := x * 4
			dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], 0xff
		}
	}
	return nil
}
