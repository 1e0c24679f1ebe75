// Package store defines the narrow Persistence Gateway the round engine
// speaks against (spec §4.2/§6.3) and a Firestore-backed implementation of
// it. The external document database itself is out of scope for this
// module; only this interface and the one adapter are ours.
package store

import (
	"context"
	"errors"

	"github.com/jason-s-yu/quizroom/internal/quiz"
)

// Sentinel errors returned by the fatal-to-the-caller operations
// (FetchUser, FetchQuiz, CreateGame, CodeExists). The remaining operations
// never return an error to callers: failures there are logged and
// swallowed per spec §4.2's failure column.
var (
	ErrStoreUnavailable = errors.New("store: unavailable")
	ErrMissing          = errors.New("store: document missing")
)

// User is the subset of a persisted user profile the round engine needs.
type User struct {
	ID       string
	Username string // derived "first last"
	Teacher  bool
}

// LeaderboardEntry is one row of the final standings, persisted alongside
// the per-user PlayerResult documents.
type LeaderboardEntry struct {
	Place       int    `json:"place"`
	Username    string `json:"username"`
	Score       int    `json:"score"`
	UserID      string `json:"user_id"`
	TabSwitches int    `json:"tab_switches,omitempty"`
}

// PlayerResult is one student's final summary, written to
// games/{game_id}/results/{user_id}.
type PlayerResult struct {
	UserID         string                 `json:"user_id"`
	Username       string                 `json:"username"`
	Score          int                    `json:"score"`
	Placement      int                    `json:"placement"`
	TotalQuestions int                    `json:"total_questions"`
	TotalPlayers   int                    `json:"total_players"`
	TabSwitches    int                    `json:"tab_switches,omitempty"`
	Answers        []AnswerRecordSnapshot `json:"answers"`
}

// AnswerRecordSnapshot is the persisted shape of a lobby.AnswerRecord; kept
// here (rather than importing internal/lobby, which would create an import
// cycle since lobby depends on store) as the wire contract between the two
// packages.
type AnswerRecordSnapshot struct {
	QuestionIndex  int         `json:"question_index"`
	Prompt         string      `json:"prompt"`
	Type           string      `json:"type"`
	Options        []string    `json:"options,omitempty"`
	UserAnswer     interface{} `json:"user_answer"`
	CorrectAnswer  interface{} `json:"correct_answer"`
	IsCorrect      bool        `json:"is_correct"`
	PointsEarned   int         `json:"points_earned"`
	PossiblePoints int         `json:"possible_points"`
	Missed         bool        `json:"missed"`
	Explanation    string      `json:"explanation,omitempty"`
}

// Gateway is the narrow persistence contract described in spec §4.2.
// AppendPlayer, FinalizeGame, WriteResult, and DeleteGame are best-effort:
// implementations log failures internally and return nothing for callers
// to react to, since a store hiccup must never interrupt a live round.
type Gateway interface {
	FetchUser(ctx context.Context, userID string) (*User, error)
	FetchQuiz(ctx context.Context, quizID string) (*quiz.Quiz, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateGame(ctx context.Context, hostID, groupID, code, mode, quizID string) (gameID string, err error)

	AppendPlayer(ctx context.Context, gameID, userID string)
	FinalizeGame(ctx context.Context, gameID string, leaderboard []LeaderboardEntry, mode string)
	WriteResult(ctx context.Context, gameID, userID string, result PlayerResult)
	DeleteGame(ctx context.Context, gameID string)
}
