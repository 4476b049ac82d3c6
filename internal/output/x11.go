package output

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
)

// X11Driver shows frames in a plain X11 window
type X11Driver struct {
	config Config
	comp   *compositor

	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	window xproto.Window
	gc     xproto.Gcontext

	// pixmap format for the root depth
	bytesPerPixel int
	scanlinePad   int

	mu      sync.RWMutex
	width   int
	height  int
	running bool
	redraw  bool
	buf     []byte
}

// NewX11 creates an X11 window driver. The connection is made by Open.
func NewX11(config Config) *X11Driver {
	if config.Title == "" {
		config.Title = "FramePacer"
	}
	return &X11Driver{
		config: config,
		comp:   newCompositor(pictureRanges, config.MaxSurface),
		width:  config.Width,
		height: config.Height,
	}
}

func (d *X11Driver) Name() string {
	return "x11"
}

// Open connects to the X server and maps the output window
func (d *X11Driver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("x11 output already running")
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	d.conn = conn
	setup := xproto.Setup(conn)
	d.screen = setup.DefaultScreen(conn)

	for _, format := range setup.PixmapFormats {
		if format.Depth == d.screen.RootDepth {
			d.bytesPerPixel = int(format.BitsPerPixel) / 8
			d.scanlinePad = int(format.ScanlinePad) / 8
			break
		}
	}
	if d.bytesPerPixel != 3 && d.bytesPerPixel != 4 {
		conn.Close()
		return fmt.Errorf("unsupported pixmap format for depth %d", d.screen.RootDepth)
	}

	windowID, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	d.window = windowID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(
		conn,
		d.screen.RootDepth,
		d.window,
		d.screen.Root,
		0, 0,
		uint16(d.width), uint16(d.height),
		0,
		xproto.WindowClassInputOutput,
		d.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create window: %w", err)
	}

	log := logger.WithComponent("output")
	if err := d.setWindowTitle(d.config.Title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := d.setWindowClass("framepacer", "FramePacer"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(conn, d.window).Check(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	d.gc = gc
	if err := xproto.CreateGCChecked(conn, d.gc, xproto.Drawable(d.window), 0, nil).Check(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create GC: %w", err)
	}
	conn.Sync()

	d.running = true
	go d.eventLoop(conn)

	log.Info().
		Int("width", d.width).
		Int("height", d.height).
		Uint32("window_id", uint32(d.window)).
		Msg("X11 output window created")
	return nil
}

// eventLoop tracks exposure and resizes until the connection closes
func (d *X11Driver) eventLoop(conn *xgb.Conn) {
	for {
		ev, err := conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			logger.WithComponent("output").Debug().Msgf("X11 event error: %v", err)
			continue
		}
		switch e := ev.(type) {
		case xproto.ExposeEvent:
			if e.Count == 0 {
				d.mu.Lock()
				d.redraw = true
				d.mu.Unlock()
			}
		case xproto.ConfigureNotifyEvent:
			d.mu.Lock()
			if int(e.Width) != d.width || int(e.Height) != d.height {
				d.width, d.height = int(e.Width), int(e.Height)
				d.redraw = true
			}
			d.mu.Unlock()
		}
	}
}

// Close destroys the window and drops the connection
func (d *X11Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	if d.gc != 0 {
		xproto.FreeGC(d.conn, d.gc)
	}
	if d.window != 0 {
		xproto.DestroyWindow(d.conn, d.window)
		d.conn.Sync()
	}
	d.conn.Close()
	d.running = false
	logger.WithComponent("output").Info().Msg("X11 output window closed")
	return nil
}

func (d *X11Driver) UpdateFrameFormat(f *frame.Frame, p frame.Params) {
	d.comp.updateFrameFormat(f, p)
}

func (d *X11Driver) OverlayBlend(f *frame.Frame, layers []overlay.Layer) {
	d.comp.overlayBlend(layers)
}

func (d *X11Driver) DisplayFrame(f *frame.Frame) {
	defer f.Release()

	d.mu.RLock()
	running, w, h := d.running, d.width, d.height
	d.mu.RUnlock()
	if !running || w <= 0 || h <= 0 {
		return
	}

	img, err := d.comp.render(f, w, h)
	if err != nil {
		logger.WithComponent("output").Warn().Err(err).Msg("Failed to convert frame for X11")
		return
	}
	if err := d.putImage(img); err != nil {
		logger.WithComponent("output").Debug().Err(err).Msg("Failed to put image")
		return
	}

	d.mu.Lock()
	d.redraw = false
	d.mu.Unlock()
}

func (d *X11Driver) RedrawNeeded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.redraw
}

func (d *X11Driver) PropertyRange(p Property) (Range, bool) {
	return d.comp.propertyRange(p)
}

func (d *X11Driver) GetProperty(p Property) int {
	return d.comp.getProperty(p)
}

func (d *X11Driver) SetProperty(p Property, value int) int {
	return d.comp.setProperty(p, value)
}

// packBGRX converts RGBA rows into the server's ZPixmap layout
func packBGRX(dst []byte, img *image.RGBA, bytesPerPixel, stride int, alpha bool) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride:]
		row := dst[y*stride:]
		for x := 0; x < b.Dx(); x++ {
			s := x * 4
			o := x * bytesPerPixel
			row[o] = src[s+2]
			row[o+1] = src[s+1]
			row[o+2] = src[s]
			if bytesPerPixel == 4 {
				if alpha {
					row[o+3] = src[s+3]
				} else {
					row[o+3] = 0
				}
			}
		}
	}
}

// putImage sends an image to the X server to be displayed
func (d *X11Driver) putImage(img *image.RGBA) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	unpadded := w * d.bytesPerPixel
	stride := ((unpadded + d.scanlinePad - 1) / d.scanlinePad) * d.scanlinePad

	// X requests are limited in size, so send bands of rows
	maxReq := int(xproto.Setup(d.conn).MaximumRequestLength)*4 - 64
	rowsPerReq := max(1, maxReq/stride)

	if need := stride * h; cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	data := d.buf[:stride*h]
	packBGRX(data, img, d.bytesPerPixel, stride, d.screen.RootDepth == 32)

	for y := 0; y < h; y += rowsPerReq {
		rows := min(rowsPerReq, h-y)
		err := xproto.PutImageChecked(
			d.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(d.window),
			d.gc,
			uint16(w),
			uint16(rows),
			0, int16(y),
			0,
			d.screen.RootDepth,
			data[y*stride:(y+rows)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// setWindowTitle sets the window title
func (d *X11Driver) setWindowTitle(title string) error {
	titleAtom, err := d.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := d.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		d.conn,
		xproto.PropModeReplace,
		d.window,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

// setWindowClass sets the window class
func (d *X11Driver) setWindowClass(instance, class string) error {
	classAtom, err := d.getAtom("WM_CLASS")
	if err != nil {
		return err
	}
	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(
		d.conn,
		xproto.PropModeReplace,
		d.window,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

// getAtom gets an atom ID by name
func (d *X11Driver) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(d.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
