package ws

import (
	"context"

	"github.com/jason-s-yu/quizroom/internal/codegen"
	"github.com/jason-s-yu/quizroom/internal/lobby"
	"github.com/jason-s-yu/quizroom/internal/quiz"
	"github.com/jason-s-yu/quizroom/internal/session"
)

const roomCodeLength = 6

// handleCreateGame implements create_game_flow (spec §4.4 rule 2):
// resolve the quiz, mint a unique code, register the game with the
// store, and stand up the in-memory Lobby.
func (r *Router) handleCreateGame(ctx context.Context, sess *session.Session, quizID string, msg map[string]interface{}) {
	sess.Write(frame{"type": "creating_game", "message": "creating..."}.encode())

	q, err := r.gateway.FetchQuiz(ctx, quizID)
	if err != nil {
		sess.Write(errorFrame("could not load quiz: " + err.Error()))
		return
	}

	mode := lobby.ModeNormal
	disableCopy := false
	group := ""
	if g, ok := msg["group"].(string); ok {
		group = g
	}
	if gt, ok := msg["game_type"].(map[string]interface{}); ok {
		if m, ok := gt["mode"].(string); ok {
			mode = lobby.Mode(m)
		}
		if dc, ok := gt["disable_copy"].(bool); ok {
			disableCopy = dc
		}
	}

	code, err := codegen.New(ctx, roomCodeLength, func(ctx context.Context, candidate string) (bool, error) {
		if r.registry.CodeExists(candidate) {
			return true, nil
		}
		return r.gateway.CodeExists(ctx, candidate)
	})
	if err != nil {
		sess.Write(errorFrame("could not generate a room code: " + err.Error()))
		return
	}

	user := sess.User()
	gameID, err := r.gateway.CreateGame(ctx, user.ID, group, code, string(mode), quizID)
	if err != nil {
		sess.Write(errorFrame("could not create game: " + err.Error()))
		return
	}

	l := lobby.New(code, gameID, sess, user, q, mode, disableCopy, r.gateway, r.logger)
	r.registry.Add(l)
	sess.JoinLobby(code, true)

	sess.Write(frame{"type": "game_created", "message": "done! room code: " + code, "code": code}.encode())
	sess.Write(frame{"type": "quiz_info", "questions": hostQuestionView(q)}.encode())
}

// handleJoin implements join_flow (spec §4.4 rule 3): find the lobby
// by code and add the caller as a player.
func (r *Router) handleJoin(ctx context.Context, sess *session.Session, code string) {
	sess.Write(frame{"type": "joining", "message": "joining..."}.encode())

	l, ok := r.registry.Get(code)
	if !ok {
		sess.Write(errorFrame("Invalid room code!"))
		return
	}
	l.AddPlayer(sess, sess.User())
	sess.JoinLobby(code, false)
	sess.Write(frame{"type": "joined", "message": "Joined! Waiting for start"}.encode())
}

// hostQuestionView renders the quiz the host authored with correct
// answers intact (supplemented quiz_info frame; see DESIGN.md).
func hostQuestionView(q *quiz.Quiz) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(q.Questions))
	for _, question := range q.Questions {
		out = append(out, map[string]interface{}{
			"question":    question.Prompt,
			"type":        string(question.Type),
			"options":     question.Options,
			"correct":     question.CorrectPayload(),
			"point":       question.Points(),
			"timeLimit":   question.TimeLimit,
			"explanation": question.Explanation,
		})
	}
	return out
}
