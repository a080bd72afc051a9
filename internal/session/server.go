package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"exchange_go/internal/event"
)

// Engine is the session package's view of the matching engine.
type Engine interface {
	Inbox() chan<- event.Event
	Now() float64
}

// Server accepts trader websocket connections and turns them into sessions.
type Server struct {
	addr   string
	engine Engine
	logger *slog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(host string, port int, eng Engine, logger *slog.Logger) *Server {
	return &Server{
		addr:   fmt.Sprintf("%s:%d", host, port),
		engine: eng,
		logger: logger.With("component", "session_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Autotraders connect from anywhere on the match network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start begins accepting connections. It returns once the listener fails or
// is shut down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/exec", s.handleUpgrade)

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("execution server listening", "addr", s.addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn := NewConn(ws, s.engine, s.logger)
	go conn.Run()
}
