package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/quizroom/internal/lobby"
	"github.com/jason-s-yu/quizroom/internal/middleware"
	"github.com/jason-s-yu/quizroom/internal/session"
	"github.com/jason-s-yu/quizroom/internal/store"
	"github.com/sirupsen/logrus"
)

// Handler upgrades every request to a single unified WebSocket endpoint
// (spec §6.1: one transport, no subprotocol negotiation) and runs the
// session's read/write pumps.
func Handler(registry *lobby.Registry, gateway store.Gateway, logger *logrus.Logger) http.HandlerFunc {
	router := NewRouter(registry, gateway, logger)

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "internal error")
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		sess := session.New(logger, cancel)

		go writePump(ctx, conn, sess, logger)

		sess.Write(frame{"type": "welcome", "message": "connected"}.encode())

		err = readPump(ctx, conn, sess, router, registry, logger)
		cancel()
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
	}
}

func readPump(ctx context.Context, conn *websocket.Conn, sess *session.Session, router *Router, registry *lobby.Registry, logger *logrus.Logger) error {
	defer func() {
		cleanupSession(sess, registry)
		conn.Close(websocket.StatusNormalClosure, "closing")
	}()

	closeFn := func(code websocket.StatusCode, reason string) {
		conn.Close(code, reason)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("session %s: invalid json frame: %v", sess.ID, err)
			sess.Write(errorFrame("malformed message"))
			continue
		}

		router.Dispatch(ctx, sess, msg, closeFn)
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sess *session.Session, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sess.OutChan:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				logger.Warnf("session %s: write failed: %v", sess.ID, err)
				return
			}
		case req := <-sess.CloseChan:
			drainOutChan(ctx, conn, sess, logger)
			conn.Close(websocket.StatusCode(req.Code), req.Reason)
			return
		}
	}
}

// drainOutChan flushes whatever is already buffered on OutChan before a
// requested close takes effect, so a frame enqueued just before
// RequestClose (e.g. a "kicked" notice) is not lost to the race between
// the close and the write pump's next select.
func drainOutChan(ctx context.Context, conn *websocket.Conn, sess *session.Session, logger *logrus.Logger) {
	for {
		select {
		case data := <-sess.OutChan:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				logger.Warnf("session %s: write failed during drain: %v", sess.ID, err)
				return
			}
		default:
			return
		}
	}
}

// cleanupSession runs the Registry's disconnect lifecycle hook (spec
// §4.5.6): drop a lobby-less session outright, otherwise tear the
// user out of their lobby and drop the lobby if it's now abandoned.
func cleanupSession(sess *session.Session, registry *lobby.Registry) {
	if sess.Cancel != nil {
		defer sess.Cancel()
	}

	code := sess.LobbyCode()
	if code == "" {
		return
	}
	l, ok := registry.Get(code)
	if !ok {
		return
	}

	if sess.IsHost() {
		l.HandleHostDisconnect()
		registry.Delete(code)
		return
	}

	user := sess.User()
	if user == nil {
		return
	}
	if empty := l.HandleParticipantDisconnect(user.ID); empty {
		registry.Delete(code)
	}
}
