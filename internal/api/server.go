package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/config"
	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/bryanchriswhite/FramePacer/internal/output"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Version is reported by the health endpoint
const Version = "0.2.0"

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	engine     *engine.Engine
	configMgr  *config.Manager
	overlayMgr *overlay.Manager
	mjpeg      *output.MJPEGDriver
	upgrader   websocket.Upgrader
	log        *zerolog.Logger

	httpServer *http.Server
}

// NewServer creates a new API server. configMgr, overlayMgr and mjpeg may be
// nil; their routes then answer 404.
func NewServer(e *engine.Engine, configMgr *config.Manager, overlayMgr *overlay.Manager, mjpeg *output.MJPEGDriver) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		engine:     e,
		configMgr:  configMgr,
		overlayMgr: overlayMgr,
		mjpeg:      mjpeg,
		log:        logger.WithComponent("api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Properties
	api.HandleFunc("/properties", s.handleListProperties).Methods("GET")
	api.HandleFunc("/properties/{name}", s.handleGetProperty).Methods("GET")
	api.HandleFunc("/properties/{name}", s.handleSetProperty).Methods("PUT")

	// Playback control
	api.HandleFunc("/control/flush", s.handleFlush).Methods("POST")
	api.HandleFunc("/control/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/control/resume", s.handleResume).Methods("POST")
	api.HandleFunc("/control/step", s.handleStep).Methods("POST")

	// State
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/streams", s.handleListStreams).Methods("GET")
	api.HandleFunc("/streams/{id}", s.handleGetStream).Methods("GET")
	api.HandleFunc("/grab", s.handleGrab).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)

	// Overlay
	api.HandleFunc("/overlay/widgets", s.handleGetWidgets).Methods("GET")
	api.HandleFunc("/overlay/widgets", s.handleAddWidget).Methods("POST")
	api.HandleFunc("/overlay/widgets/{id}", s.handleUpdateWidget).Methods("PUT")
	api.HandleFunc("/overlay/widgets/{id}", s.handleRemoveWidget).Methods("DELETE")
	api.HandleFunc("/overlay/types", s.handleWidgetTypes).Methods("GET")
	api.HandleFunc("/overlay/enabled", s.handleSetOverlayEnabled).Methods("PUT")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.mjpeg != nil {
		s.router.HandleFunc("/stream", s.mjpeg.GetHTTPHandler())
		s.router.HandleFunc("/stats", s.mjpeg.GetStatsHandler())
		s.router.HandleFunc("/", s.mjpeg.GetViewerHandler())
		return
	}
	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the router wrapped in the server middleware
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.enableCORS(s.router))
}

// Start serves on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msgf("Starting server on http://localhost%s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for active requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("Request")
	})
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownProperty), errors.Is(err, engine.ErrNotAvailable):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrReadOnlyProperty):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrUnsupportedProperty):
		return http.StatusNotImplemented
	case errors.Is(err, engine.ErrStepTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, engine.ErrClockFixed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEngineStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Int("status", code).Msg("Request failed")
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, map[string]string{"status": "success"})
}

// HTTP Handlers

type propertyValue struct {
	Name  engine.Property `json:"name"`
	Value int             `json:"value"`
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.PropertyList())
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := engine.ParseProperty(mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := s.engine.GetProperty(p)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, propertyValue{Name: p, Value: v})
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := engine.ParseProperty(mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, err)
		return
	}

	var req struct {
		Value *int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Value == nil {
		http.Error(w, "value is required", http.StatusBadRequest)
		return
	}

	v, err := s.engine.SetProperty(r.Context(), p, *req.Value)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info().Str("property", string(p)).Int("value", v).Msg("Property set")
	writeJSON(w, propertyValue{Name: p, Value: v})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Flush(); err != nil {
		s.fail(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(); err != nil {
		s.fail(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resume(); err != nil {
		s.fail(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SingleStep(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"status": "success",
		"clock":  s.engine.Clock().CurrentTime(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Stats())
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Streams())
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, ok := s.engine.Stream(id)
	if !ok {
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}
	writeJSON(w, st.Stats())
}

// grabOptions reads the grab query: wait, timeout_ms, width, height, crop
// and scaler
func grabOptions(r *http.Request) (engine.GrabOptions, error) {
	q := r.URL.Query()
	var opts engine.GrabOptions
	var err error

	boolParam := func(name string) bool {
		v, perr := strconv.ParseBool(q.Get(name))
		if q.Get(name) != "" && perr != nil && err == nil {
			err = fmt.Errorf("invalid %s: %q", name, q.Get(name))
		}
		return v
	}
	intParam := func(name string) int {
		if q.Get(name) == "" {
			return 0
		}
		v, perr := strconv.Atoi(q.Get(name))
		if (perr != nil || v < 0) && err == nil {
			err = fmt.Errorf("invalid %s: %q", name, q.Get(name))
		}
		return v
	}

	opts.WaitNext = boolParam("wait")
	opts.Crop = boolParam("crop")
	opts.Width = intParam("width")
	opts.Height = intParam("height")
	opts.Timeout = time.Duration(intParam("timeout_ms")) * time.Millisecond
	opts.Scaler = q.Get("scaler")
	return opts, err
}

func (s *Server) handleGrab(w http.ResponseWriter, r *http.Request) {
	opts, err := grabOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "jpeg" && format != "jpg" {
		http.Error(w, fmt.Sprintf("unknown image format %q", format), http.StatusBadRequest)
		return
	}

	capture, err := s.engine.NewGrabber(opts).Grab(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	img, err := capture.Image()
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("X-Frame-VPTS", strconv.FormatInt(capture.VPTS, 10))
	w.Header().Set("X-Frame-PTS", strconv.FormatInt(capture.PTS, 10))
	w.Header().Set("Cache-Control", "no-cache")
	if format == "png" {
		w.Header().Set("Content-Type", "image/png")
		err = png.Encode(w, img)
	} else {
		w.Header().Set("Content-Type", "image/jpeg")
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode grab")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.engine.Subscribe(32)
	defer unsubscribe()

	// the reader only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("Event subscriber connected")
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			s.log.Debug().Str("remote", r.RemoteAddr).Msg("Event subscriber disconnected")
			return
		}
	}
}

func (s *Server) handleGetWidgets(w http.ResponseWriter, r *http.Request) {
	if s.overlayMgr == nil {
		http.Error(w, "overlay disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{
		"enabled": s.overlayMgr.IsEnabled(),
		"widgets": s.overlayMgr.ExportConfig(),
	})
}

func (s *Server) handleAddWidget(w http.ResponseWriter, r *http.Request) {
	if s.overlayMgr == nil {
		http.Error(w, "overlay disabled", http.StatusNotFound)
		return
	}

	var req struct {
		Type   string                 `json:"type"`
		ID     string                 `json:"id"`
		Config map[string]interface{} `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = req.Type + "-" + uuid.NewString()[:8]
	}

	widget, err := s.overlayMgr.CreateWidget(req.Type, req.ID, req.Config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.overlayMgr.AddWidget(widget); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.persistWidgets()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(widget.GetConfig())
}

func (s *Server) handleUpdateWidget(w http.ResponseWriter, r *http.Request) {
	if s.overlayMgr == nil {
		http.Error(w, "overlay disabled", http.StatusNotFound)
		return
	}
	id := mux.Vars(r)["id"]

	var cfg map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.overlayMgr.GetWidget(id); !ok {
		http.Error(w, "widget not found", http.StatusNotFound)
		return
	}
	if err := s.overlayMgr.UpdateWidget(id, cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.persistWidgets()
	writeSuccess(w)
}

func (s *Server) handleRemoveWidget(w http.ResponseWriter, r *http.Request) {
	if s.overlayMgr == nil {
		http.Error(w, "overlay disabled", http.StatusNotFound)
		return
	}
	if err := s.overlayMgr.RemoveWidget(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.persistWidgets()
	writeSuccess(w)
}

func (s *Server) handleWidgetTypes(w http.ResponseWriter, r *http.Request) {
	if s.overlayMgr == nil {
		http.Error(w, "overlay disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, s.overlayMgr.GetAvailableWidgetTypes())
}

func (s *Server) handleSetOverlayEnabled(w http.ResponseWriter, r *http.Request) {
	if s.overlayMgr == nil {
		http.Error(w, "overlay disabled", http.StatusNotFound)
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.overlayMgr.SetEnabled(req.Enabled)
	writeSuccess(w)
}

// persistWidgets writes the widget list back to the config file
func (s *Server) persistWidgets() {
	if s.configMgr == nil {
		return
	}
	if err := s.configMgr.SetOverlayWidgets(s.overlayMgr.ExportConfig()); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist overlay widgets")
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "no config file", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "no config file", http.StatusNotFound)
		return
	}
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"driver":  s.engine.Driver().Name(),
		"running": s.engine.Running(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FramePacer</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; margin-top: 0; }
        .info { color: #666; line-height: 1.6; }
        a { color: #1976d2; text-decoration: none; }
        code {
            background: #f5f5f5;
            padding: 2px 6px;
            border-radius: 3px;
            font-family: 'Courier New', monospace;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>FramePacer</h1>
        <div class="info">
            <p>Video frame pool and presentation scheduler.</p>
            <h3>API Endpoints:</h3>
            <ul>
                <li><a href="/api/health">/api/health</a> - Server health check</li>
                <li><a href="/api/stats">/api/stats</a> - Pool and scheduler counters</li>
                <li><a href="/api/streams">/api/streams</a> - Attached decoder streams</li>
                <li><a href="/api/properties">/api/properties</a> - Engine properties</li>
                <li><a href="/api/grab">/api/grab</a> - Snapshot of the displayed frame</li>
                <li><a href="/api/config">/api/config</a> - View configuration</li>
            </ul>
            <p>Events are pushed on the <code>/api/events</code> websocket.</p>
        </div>
    </div>
</body>
</html>`

	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
		return
	}
	http.NotFound(w, r)
}
