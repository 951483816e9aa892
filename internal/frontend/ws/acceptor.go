// Package ws is the websocket frontend: it upgrades HTTP connections,
// enforces the join handshake, and bridges the socket to the session
// hub's dispatch and outbox sides.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/plaza/internal/broadcast"
	"github.com/cory-johannsen/plaza/internal/config"
	"github.com/cory-johannsen/plaza/internal/protocol"
)

// joinTimeout bounds how long a fresh connection may idle before sending
// its join frame.
const joinTimeout = 10 * time.Second

// maxNameLength caps the display name taken from the join frame.
const maxNameLength = 24

// Hub is the session side of the bridge. Implemented by gameserver.Hub.
type Hub interface {
	IsBanned(addr string) bool
	Join(name, avatar, addr string, closeFn func()) (string, *broadcast.Outbox, error)
	Dispatch(sessionID string, raw []byte)
	Leave(sessionID string)
}

// Acceptor serves the websocket endpoint and owns the per-connection
// read and write goroutines.
type Acceptor struct {
	cfg    config.ServerConfig
	hub    Hub
	logger *zap.Logger

	upgrader websocket.Upgrader
	server   *http.Server
}

// NewAcceptor creates a websocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; hub and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, hub Hub, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:    cfg,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe starts the HTTP listener and serves websocket sessions
// until Stop is called. This method blocks until the acceptor is stopped.
func (a *Acceptor) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.WSPath, a.handleWS)

	a.server = &http.Server{Addr: a.cfg.Addr(), Handler: mux}

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", a.cfg.Addr()),
		zap.String("path", a.cfg.WSPath),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s: %w", a.cfg.Addr(), err)
	}
	return nil
}

// Stop shuts the HTTP server down, waiting for in-flight upgrades up to
// the context deadline.
func (a *Acceptor) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *Acceptor) handleWS(w http.ResponseWriter, r *http.Request) {
	if a.hub.IsBanned(r.RemoteAddr) {
		a.logger.Warn("rejected banned address", zap.String("addr", r.RemoteAddr))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	join, err := a.awaitJoin(conn)
	if err != nil {
		a.logger.Debug("handshake failed",
			zap.String("addr", r.RemoteAddr), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected join"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	sessionID, outbox, err := a.hub.Join(join.Name, join.Avatar, r.RemoteAddr, func() { _ = conn.Close() })
	if err != nil {
		a.logger.Error("join failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
		_ = conn.Close()
		return
	}

	go a.writePump(conn, outbox)
	a.readLoop(conn, sessionID)
}

// awaitJoin reads the first frame, which must be a valid join message.
func (a *Acceptor) awaitJoin(conn *websocket.Conn) (protocol.Join, error) {
	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return protocol.Join{}, fmt.Errorf("reading join frame: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	msg, err := protocol.Decode(raw)
	if err != nil {
		return protocol.Join{}, fmt.Errorf("decoding join frame: %w", err)
	}
	join, ok := msg.(protocol.Join)
	if !ok {
		return protocol.Join{}, errors.New("first frame is not a join")
	}

	join.Name = strings.TrimSpace(join.Name)
	if join.Name == "" {
		return protocol.Join{}, errors.New("join without a name")
	}
	if len(join.Name) > maxNameLength {
		join.Name = join.Name[:maxNameLength]
	}
	return join, nil
}

// readLoop feeds inbound frames to the hub until the connection drops.
// Runs on the handler goroutine; returning tears the session down.
func (a *Acceptor) readLoop(conn *websocket.Conn, sessionID string) {
	defer func() {
		a.hub.Leave(sessionID)
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("connection dropped",
					zap.String("session", sessionID), zap.Error(err))
			}
			return
		}
		a.hub.Dispatch(sessionID, raw)
	}
}

// writePump drains the session outbox onto the socket. The outbox channel
// closing (unregister or overflow disconnect) ends the pump and closes
// the connection.
func (a *Acceptor) writePump(conn *websocket.Conn, outbox *broadcast.Outbox) {
	for frame := range outbox.Frames() {
		_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			_ = conn.Close()
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}
