package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"slitmask/internal/service"
	"slitmask/internal/watcher"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the mask service over HTTP and pushes change events to
// websocket clients.
type Server struct {
	addr     string
	svc      *service.Service
	watcher  *watcher.Watcher
	log      *slog.Logger
	hub      *hub
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a server for svc. w may be nil.
func NewServer(addr string, svc *service.Service, w *watcher.Watcher, log *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		svc:     svc,
		watcher: w,
		log:     log,
		hub:     newHub(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, no browser session to protect
			},
		},
	}
}

// Start runs the event hub, the optional drop-directory watcher and the HTTP
// server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.StartHub(ctx)

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			s.log.Error("Failed to start watcher", "error", err)
			return err
		}
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server...")

		if s.watcher != nil {
			s.watcher.Stop()
		}

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("Server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartHub runs the websocket hub and feeds it service events until ctx is
// cancelled.
func (s *Server) StartHub(ctx context.Context) {
	events, unsubscribe := s.svc.Subscribe()
	go s.hub.run(ctx)
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.hub.publish(ctx, ev)
			}
		}
	}()
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	return r
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	r.HandleFunc("/masks", s.handleList).Methods("GET")
	r.HandleFunc("/masks", s.handleGenerate).Methods("POST")
	r.HandleFunc("/masks/longslit", s.handleLongSlit).Methods("POST")
	r.HandleFunc("/masks/open", s.handleOpenMask).Methods("POST")
	r.HandleFunc("/masks/{id}", s.handleGet).Methods("GET")
	r.HandleFunc("/masks/{id}/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/masks/{id}/export/{format}", s.handleExport).Methods("GET")
	r.HandleFunc("/masks/{id}/width", s.handleIncrementWidth).Methods("POST")
	r.HandleFunc("/masks/{id}/slits/{row:[0-9]+}/width", s.handleSetWidth).Methods("POST")
	r.HandleFunc("/masks/{id}/slits/{row:[0-9]+}/align", s.handleAlign).Methods("POST")
	r.HandleFunc("/masks/{id}/slits/{row:[0-9]+}/move", s.handleMove).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	if !s.hub.register(r.Context(), conn) {
		conn.Close()
		return
	}

	go func() {
		defer s.hub.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
