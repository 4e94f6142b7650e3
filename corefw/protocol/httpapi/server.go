// Package httpapi serves a thin local HTTP/JSON front door onto
// corefw/protocol's binary command dispatcher, for a bench configuration
// tool that would rather speak JSON over localhost than frame raw HID
// reports itself.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hallcore/corefw/corefw/protocol"
)

// Server serves the bench configuration API on localhost.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	dispatcher *protocol.Dispatcher
	version    string
}

// New creates a configuration server fronting dispatcher.
func New(dispatcher *protocol.Dispatcher, version string) *Server {
	return &Server{dispatcher: dispatcher, version: version}
}

// Start begins serving on a random localhost port. Returns the URL.
func (s *Server) Start() (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/keymap", s.handleKeymap)
	mux.HandleFunc("/actuation", s.handleActuation)
	mux.HandleFunc("/advanced-keys", s.handleAdvancedKeys)
	mux.HandleFunc("/gamepad-options", s.handleGamepadOptions)
	mux.HandleFunc("/profile", s.handleProfile)
	mux.HandleFunc("/tick-rate", s.handleTickRate)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[protocol] httpapi error: %v\n", err)
		}
	}()

	return fmt.Sprintf("http://%s", ln.Addr().String()), nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// URL returns the server's URL, or empty string if not started.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return fmt.Sprintf("http://%s", s.listener.Addr().String())
}
