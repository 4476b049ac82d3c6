package output

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
)

// MJPEGDriver presents frames as a Motion JPEG stream over HTTP
type MJPEGDriver struct {
	config  Config
	running bool
	mu      sync.RWMutex

	comp *compositor

	frameMu     sync.RWMutex
	currentJPEG []byte
	lastUpdate  time.Time
	lastVPTS    int64

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
	// newClient asks the render loop to push the still picture
	newClient bool

	// Stats
	frameCount uint64
	startTime  time.Time
}

// NewMJPEG creates a new MJPEG stream driver
func NewMJPEG(config Config) *MJPEGDriver {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 90
	}
	return &MJPEGDriver{
		config:  config,
		comp:    newCompositor(pictureRanges, config.MaxSurface),
		clients: make(map[chan []byte]struct{}),
	}
}

// Name returns the driver name
func (m *MJPEGDriver) Name() string {
	return "mjpeg"
}

// Open starts accepting frames. The HTTP handlers are mounted separately.
func (m *MJPEGDriver) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("output").Info().Msgf("[MJPEG] Output started: %dx%d q=%d", m.config.Width, m.config.Height, m.config.Quality)
	return nil
}

// Close disconnects every client
func (m *MJPEGDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("output").Info().Msgf("[MJPEG] Output stopped after %v frames", m.frameCount)
	return nil
}

// IsRunning returns true if the output is active
func (m *MJPEGDriver) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *MJPEGDriver) UpdateFrameFormat(f *frame.Frame, p frame.Params) {
	m.comp.updateFrameFormat(f, p)
}

func (m *MJPEGDriver) OverlayBlend(f *frame.Frame, layers []overlay.Layer) {
	m.comp.overlayBlend(layers)
}

// DisplayFrame encodes f and sends it to every connected client
func (m *MJPEGDriver) DisplayFrame(f *frame.Frame) {
	defer f.Release()

	if !m.IsRunning() {
		return
	}

	img, err := m.comp.render(f, m.config.Width, m.config.Height)
	if err != nil {
		logger.WithComponent("output").Warn().Err(err).Msg("[MJPEG] Failed to convert frame")
		return
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		logger.WithComponent("output").Warn().Err(err).Msg("[MJPEG] Failed to encode JPEG")
		return
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.currentJPEG = jpegData
	m.lastUpdate = time.Now()
	m.lastVPTS = f.VPTS
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.Lock()
	m.newClient = false
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.Unlock()
}

// RedrawNeeded is true after a client connected and before it got a picture
func (m *MJPEGDriver) RedrawNeeded() bool {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return m.newClient
}

func (m *MJPEGDriver) PropertyRange(p Property) (Range, bool) {
	return m.comp.propertyRange(p)
}

func (m *MJPEGDriver) GetProperty(p Property) int {
	return m.comp.getProperty(p)
}

func (m *MJPEGDriver) SetProperty(p Property, value int) int {
	return m.comp.setProperty(p, value)
}

// CurrentJPEG returns the last encoded picture, or nil
func (m *MJPEGDriver) CurrentJPEG() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.currentJPEG
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGDriver) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
// Mount this at /stream or similar endpoint
func (m *MJPEGDriver) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		m.newClient = true
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		// Send the picture on screen right away so a paused stream is not blank
		if cur := m.CurrentJPEG(); cur != nil {
			frameChan <- cur
		}

		logger.WithComponent("output").Info().Msgf("[MJPEG] New client connected (total: %d)", clientCount)

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			logger.WithComponent("output").Info().Msgf("[MJPEG] Client disconnected (remaining: %d)", clientCount)
		}()

		ctx := r.Context()
		for {
			var jpegData []byte
			var ok bool
			select {
			case <-ctx.Done():
				return
			case jpegData, ok = <-frameChan:
				if !ok {
					return
				}
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
				return
			}
			if _, err := w.Write(jpegData); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// GetViewerHandler returns an HTTP handler that displays a clean stream viewer with subtle hover nav
func (m *MJPEGDriver) GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FramePacer</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        .stream-container {
            position: relative;
            display: flex;
            justify-content: center;
            align-items: center;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
        }
        .nav-trigger {
            position: fixed;
            bottom: 0;
            left: 0;
            width: 100px;
            height: 100px;
            z-index: 900;
        }
        .nav-menu {
            position: fixed;
            bottom: 16px;
            left: 16px;
            display: flex;
            gap: 8px;
            opacity: 0;
            transform: translateY(10px);
            transition: opacity 0.2s ease, transform 0.2s ease;
            pointer-events: none;
            z-index: 1000;
        }
        .nav-trigger:hover ~ .nav-menu,
        .nav-menu:hover {
            opacity: 1;
            transform: translateY(0);
            pointer-events: auto;
        }
        .nav-link {
            display: flex;
            align-items: center;
            gap: 6px;
            padding: 8px 14px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            text-decoration: none;
            border-radius: 20px;
            font-family: system-ui, -apple-system, sans-serif;
            font-size: 13px;
            transition: background 0.15s ease, color 0.15s ease;
        }
        .nav-link:hover {
            background: rgba(60, 60, 60, 0.95);
            color: #fff;
        }
    </style>
</head>
<body>
    <div class="stream-container">
        <img src="/stream" alt="FramePacer Live Stream">
    </div>
    <div class="nav-trigger"></div>
    <div class="nav-menu">
        <a href="/stats" class="nav-link">📊 Stats</a>
    </div>
</body>
</html>`
		w.Write([]byte(html))
	}
}

// GetStatsHandler returns an HTTP handler that shows stream statistics
func (m *MJPEGDriver) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		running := m.running
		frameCount := m.frameCount
		startTime := m.startTime
		m.mu.RUnlock()

		m.frameMu.RLock()
		lastUpdate := m.lastUpdate
		m.frameMu.RUnlock()

		m.clientsMu.RLock()
		clientCount := len(m.clients)
		m.clientsMu.RUnlock()

		var fps float64
		if running && !startTime.IsZero() {
			elapsed := time.Since(startTime).Seconds()
			if elapsed > 0 {
				fps = float64(frameCount) / elapsed
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>FramePacer - MJPEG Stats</title>
    <style>
        body { font-family: monospace; padding: 20px; background: #1e1e1e; color: #d4d4d4; }
        .stat { margin: 10px 0; }
        .label { color: #569cd6; }
        .value { color: #4ec9b0; }
        .status-running { color: #4ec9b0; }
        .status-stopped { color: #ce9178; }
    </style>
</head>
<body>
    <h1>FramePacer MJPEG Stream Stats</h1>
    <div class="stat">
        <span class="label">Status:</span>
        <span class="value %s">%s</span>
    </div>
    <div class="stat">
        <span class="label">Output:</span>
        <span class="value">%dx%d, JPEG quality %d</span>
    </div>
    <div class="stat">
        <span class="label">Presented FPS:</span>
        <span class="value">%.2f</span>
    </div>
    <div class="stat">
        <span class="label">Total Frames:</span>
        <span class="value">%d</span>
    </div>
    <div class="stat">
        <span class="label">Connected Clients:</span>
        <span class="value">%d</span>
    </div>
    <div class="stat">
        <span class="label">Last Update:</span>
        <span class="value">%s</span>
    </div>
    <div class="stat">
        <span class="label">Uptime:</span>
        <span class="value">%s</span>
    </div>
    <p><a href="/stream" style="color: #569cd6;">View Stream</a></p>
</body>
</html>`,
			func() string {
				if running {
					return "status-running"
				}
				return "status-stopped"
			}(),
			func() string {
				if running {
					return "Running"
				}
				return "Stopped"
			}(),
			m.config.Width, m.config.Height, m.config.Quality,
			fps,
			frameCount,
			clientCount,
			func() string {
				if lastUpdate.IsZero() {
					return "Never"
				}
				return time.Since(lastUpdate).Round(time.Millisecond).String() + " ago"
			}(),
			func() string {
				if startTime.IsZero() {
					return "N/A"
				}
				return time.Since(startTime).Round(time.Second).String()
			}(),
		)
	}
}
