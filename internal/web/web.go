package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"stlcd/internal/config"
	appLog "stlcd/internal/log"
	"stlcd/internal/panel"
)

// Display is what the control server needs from the panel driver.
type Display interface {
	TurnDisplayOff() error
	TurnDisplayOn() error
	Deinit() error
	BacklightOn() bool
	Config() panel.Config
}

// Server exposes display power and clear over HTTP.
type Server struct {
	cfg     *config.Config
	display Display
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, d Display) *Server {
	s := &Server{
		cfg:     cfg,
		display: d,
		mux:     http.NewServeMux(),
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

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
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
			w.Header().Set("WWW-Authenticate", `Basic realm="stlcd", charset="UTF-8"`)
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

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/display", s.handleDisplay)
	s.mux.HandleFunc("/api/clear", s.handleClear)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type displayResponse struct {
	Backlight bool   `json:"backlight"`
	Panels    int    `json:"panels"`
	Family    string `json:"family"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type displayRequest struct {
	On *bool `json:"on"`
}

// handleDisplay reports display state on GET and switches the backlight on
// POST {"on": bool}.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req displayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
			writeError(w, http.StatusBadRequest, `expected {"on": true|false}`)
			return
		}
		var err error
		if *req.On {
			err = s.display.TurnDisplayOn()
		} else {
			err = s.display.TurnDisplayOff()
		}
		if err != nil {
			appLog.Error("display power change failed", err, "on", *req.On)
			writeError(w, http.StatusInternalServerError, "failed to switch display")
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pc := s.display.Config()
	writeJSON(w, http.StatusOK, displayResponse{
		Backlight: s.display.BacklightOn(),
		Panels:    pc.Panels,
		Family:    pc.Family.String(),
		Width:     pc.Geometry.Width,
		Height:    pc.Geometry.Height,
	})
}

// handleClear blanks every panel.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.display.Deinit(); err != nil {
		appLog.Error("clear failed", err)
		writeError(w, http.StatusInternalServerError, "failed to clear display")
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
