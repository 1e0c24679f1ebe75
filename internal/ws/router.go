// Package ws is the Message Router and transport: it decodes inbound
// frames, dispatches by field presence (spec §4.4), and runs the
// read/write pumps for a session's socket. Grounded on the teacher's
// internal/handlers/lobby_ws.go and game_ws.go for the pump split, and
// on original_source/Back/main.py's main_handler for the exact
// sequential, non-exclusive rule evaluation.
package ws

import (
	"context"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/quizroom/internal/lobby"
	"github.com/jason-s-yu/quizroom/internal/session"
	"github.com/jason-s-yu/quizroom/internal/store"
	"github.com/sirupsen/logrus"
)

// closer lets a rule request the socket be torn down with a specific
// WebSocket close code, per spec §7 (AuthError closes with 1008). The
// lockdown PolicyError close goes through session.RequestClose instead.
type closer func(code websocket.StatusCode, reason string)

// Router evaluates the field-presence rule table against one decoded
// frame for one session. It holds no per-connection state itself;
// everything routes through the session and, once joined, the lobby.
type Router struct {
	registry *lobby.Registry
	gateway  store.Gateway
	logger   *logrus.Logger
	log      *logrus.Entry
}

func NewRouter(registry *lobby.Registry, gateway store.Gateway, logger *logrus.Logger) *Router {
	return &Router{registry: registry, gateway: gateway, logger: logger, log: logger.WithField("component", "router")}
}

// Dispatch evaluates every rule in spec §4.4's fixed order against msg.
// Rules are independent `if`s, not a switch: a frame carrying both
// user_id and quiz, for instance, authenticates AND creates a lobby in
// one pass, matching the source's observable protocol exactly.
func (r *Router) Dispatch(ctx context.Context, sess *session.Session, msg map[string]interface{}, close closer) {
	// Rule 1: auth frame, evaluated only while unauthenticated. A frame
	// that authenticates successfully goes on through the remaining rules.
	if !sess.Authenticated() {
		if raw, ok := msg["user_id"]; ok {
			r.handleAuth(ctx, sess, raw, close)
		}
		if !sess.Authenticated() {
			return // all other fields are ignored until auth succeeds, per spec §4.3.
		}
	}

	user := sess.User()

	// Rule 2: teacher creating a game.
	if quizID, ok := msg["quiz"].(string); ok && user.Teacher && sess.LobbyCode() == "" {
		r.handleCreateGame(ctx, sess, quizID, msg)
	}

	// Rule 3: student joining by code.
	if code, ok := msg["code"].(string); ok && sess.LobbyCode() == "" {
		r.handleJoin(ctx, sess, code)
	}

	l, hasLobby := r.registry.Get(sess.LobbyCode())

	// Rule 4: host starting the game.
	if _, ok := msg["start"]; ok && hasLobby && sess.IsHost() {
		if err := l.StartGame(user.ID); err != nil {
			sess.Write(errorFrame(err.Error()))
		}
	}

	// Rule 5: host advancing to the next question.
	if _, ok := msg["next"]; ok && hasLobby && sess.IsHost() {
		if err := l.StartNextRound(user.ID); err != nil {
			sess.Write(errorFrame(err.Error()))
		}
	}

	// Rule 6: host finalizing the game.
	if _, ok := msg["show_results"]; ok && hasLobby && sess.IsHost() {
		if err := l.FinishGame(user.ID); err != nil {
			sess.Write(errorFrame(err.Error()))
		}
	}

	// Rule 7: answer submission.
	if answer, ok := msg["answer"]; ok && hasLobby {
		l.SaveAnswer(user.ID, answer)
	}

	// Rule 8: anti-cheat report.
	if report, ok := msg["report"].(string); ok && report == "switched_tabs" && hasLobby {
		l.OnTabEvent(user.ID)
	}
}

func (r *Router) handleAuth(ctx context.Context, sess *session.Session, rawUserID interface{}, close closer) {
	sess.Write(frame{"type": "auth_attempt", "message": "authenticating..."}.encode())

	userID, ok := rawUserID.(string)
	if !ok {
		close(websocket.StatusPolicyViolation, "invalid credentials")
		return
	}
	user, err := r.gateway.FetchUser(ctx, userID)
	if err != nil || user == nil {
		close(websocket.StatusPolicyViolation, "invalid credentials")
		return
	}
	sess.Authenticate(user)
	sess.Write(frame{"type": "auth_success", "username": user.Username}.encode())
}
