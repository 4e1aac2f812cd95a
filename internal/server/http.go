package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"modes1090/internal/tracker"
)

// AircraftLister is the part of the tracker the HTTP service reads.
type AircraftLister interface {
	Snapshot() []tracker.Aircraft
}

// HTTPServer serves the aircraft list, metrics and a health check.
type HTTPServer struct {
	ln     net.Listener
	srv    *http.Server
	logger *logrus.Logger
}

// NewHandler builds the HTTP routes. metrics may be nil.
func NewHandler(aircraft AircraftLister, metrics http.Handler, logger *logrus.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if err := json.NewEncoder(w).Encode(aircraft.Snapshot()); err != nil {
			logger.WithError(err).Debug("Failed to write aircraft list")
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	return mux
}

// ListenHTTP binds addr for the HTTP service.
func ListenHTTP(addr string, handler http.Handler, logger *logrus.Logger) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for HTTP on %s: %w", addr, err)
	}

	logger.WithField("addr", ln.Addr().String()).Info("HTTP service listening")

	return &HTTPServer{
		ln: ln,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}, nil
}

// Addr returns the listening address.
func (s *HTTPServer) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve runs until ctx is done, then shuts down with a 5 second grace.
func (s *HTTPServer) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("HTTP shutdown incomplete")
		return err
	}
	return nil
}

// Close stops the server immediately, whether or not Serve was called.
func (s *HTTPServer) Close() error {
	s.srv.Close()
	return s.ln.Close()
}
