package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"panelseq/internal/config"
	"panelseq/internal/control"
	appLog "panelseq/internal/log"
	"panelseq/internal/panel"
	"panelseq/internal/schedule"
)

// Source labels transitions requested over HTTP.
const Source = "http"

const (
	eventBuffer  = 16
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
)

// Server exposes panel status and control over HTTP.
type Server struct {
	cfg   *config.Config
	ctl   *control.Controller
	sched *schedule.Scheduler
	mux   *http.ServeMux

	upgrader websocket.Upgrader

	// closing is closed on shutdown so websocket streams end; Shutdown does
	// not track hijacked connections.
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer constructs a new Server. sched may be nil.
func NewServer(cfg *config.Config, ctl *control.Controller, sched *schedule.Scheduler) *Server {
	s := &Server{
		cfg:     cfg,
		ctl:     ctl,
		sched:   sched,
		mux:     http.NewServeMux(),
		closing: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="panelctl", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends open event streams.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/panel", s.handleStatus)
	s.mux.HandleFunc("/api/panel/modes", s.handleModes)
	s.mux.HandleFunc("/api/panel/prepare", s.handleTransition(s.ctl.Prepare))
	s.mux.HandleFunc("/api/panel/unprepare", s.handleTransition(s.ctl.Unprepare))
	s.mux.HandleFunc("/api/panel/brightness", s.handleBrightness)
	s.mux.HandleFunc("/api/panel/events", s.handleEvents)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

// modesResponse mirrors what a display consumer receives from a mode query.
type modesResponse struct {
	Modes       []panel.Mode      `json:"modes"`
	WidthMM     int               `json:"width_mm"`
	HeightMM    int               `json:"height_mm"`
	Orientation panel.Orientation `json:"orientation"`
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	modes := s.ctl.Modes()
	resp := modesResponse{Modes: modes, Orientation: s.ctl.Status().Orientation}
	if len(modes) > 0 {
		resp.WidthMM = modes[0].WidthMM
		resp.HeightMM = modes[0].HeightMM
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransition(fn func(ctx context.Context, source string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if err := fn(r.Context(), Source); err != nil {
			writePanelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.ctl.Status())
	}
}

type brightnessResponse struct {
	Brightness uint16 `json:"brightness"`
	Max        uint16 `json:"max"`
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	v, err := s.ctl.Brightness(r.Context())
	if err != nil {
		writePanelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, brightnessResponse{Brightness: v, Max: panel.MaxBrightness})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	entries := []schedule.Entry{}
	if s.sched != nil {
		entries = s.sched.Entries(time.Now())
	}
	writeJSON(w, http.StatusOK, entries)
}

// wsMessage is one frame on the event stream. The first frame is a status
// snapshot, later ones carry events.
type wsMessage struct {
	Type   string          `json:"type"`
	Status *control.Status `json:"status,omitempty"`
	Event  *control.Event  `json:"event,omitempty"`
}

// handleEvents streams lifecycle events over a websocket until the client
// goes away or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		appLog.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	events, cancel := s.ctl.Subscribe(eventBuffer)
	defer cancel()

	// The read loop only notices the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	st := s.ctl.Status()
	if err := s.write(conn, wsMessage{Type: "status", Status: &st}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.write(conn, wsMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, m wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// writePanelError maps controller and panel errors to HTTP statuses.
func writePanelError(w http.ResponseWriter, err error) {
	type errResp struct {
		Error string     `json:"error"`
		Kind  panel.Kind `json:"kind,omitempty"`
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, control.ErrDetached), errors.Is(err, panel.ErrNotPrepared):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, panel.ResourceUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errResp{Error: err.Error(), Kind: panel.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
