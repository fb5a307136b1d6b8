package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Path is the WebSocket endpoint.
const Path = "/channels"

// Server carries channel traffic over WebSocket binary messages, one
// envelope per message.
type Server struct {
	handler  *Handler
	upgrader websocket.Upgrader
}

func NewServer(h *Handler) *Server {
	return &Server{
		handler: h,
		upgrader: websocket.Upgrader{
			// The UI host runs on the same device.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes of the bridge.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWS)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	slog.Info("bridge: listening", "addr", ln.Addr().String(), "path", Path)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("bridge: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()

	log := slog.With("remote", r.RemoteAddr)
	log.Info("bridge: host connected")

	var writeMu sync.Mutex
	send := func(env Envelope) error {
		data, err := Encode(env)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteMessage(websocket.BinaryMessage, data)
	}

	sess := newSession(s.handler, send, log)
	defer sess.close()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		typ, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("bridge: connection lost", "error", err)
			} else {
				log.Info("bridge: host disconnected")
			}
			return
		}
		if typ != websocket.BinaryMessage {
			log.Debug("bridge: ignoring non-binary message", "type", typ)
			continue
		}
		env, err := Decode(data)
		if err != nil {
			log.Warn("bridge: bad envelope", "error", err)
			continue
		}
		sess.handle(ctx, env)
	}
}
