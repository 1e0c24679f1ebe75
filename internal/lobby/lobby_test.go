package lobby

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/quizroom/internal/quiz"
	"github.com/jason-s-yu/quizroom/internal/session"
	"github.com/jason-s-yu/quizroom/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockGateway captures persistence calls for assertions instead of
// talking to a real document store.
type mockGateway struct {
	mu              sync.Mutex
	appended        []string
	finalized       bool
	finalLeaderboard []store.LeaderboardEntry
	results         map[string]store.PlayerResult
	deleted         bool
}

func newMockGateway() *mockGateway {
	return &mockGateway{results: map[string]store.PlayerResult{}}
}

func (m *mockGateway) FetchUser(ctx context.Context, userID string) (*store.User, error) { return nil, nil }
func (m *mockGateway) FetchQuiz(ctx context.Context, quizID string) (*quiz.Quiz, error)   { return nil, nil }
func (m *mockGateway) CodeExists(ctx context.Context, code string) (bool, error)          { return false, nil }
func (m *mockGateway) CreateGame(ctx context.Context, hostID, groupID, code, mode, quizID string) (string, error) {
	return "", nil
}

func (m *mockGateway) AppendPlayer(ctx context.Context, gameID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, userID)
}

func (m *mockGateway) FinalizeGame(ctx context.Context, gameID string, leaderboard []store.LeaderboardEntry, mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
	m.finalLeaderboard = leaderboard
}

func (m *mockGateway) WriteResult(ctx context.Context, gameID, userID string, result store.PlayerResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[userID] = result
}

func (m *mockGateway) DeleteGame(ctx context.Context, gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = true
}

func testSession() *session.Session {
	return session.New(logrus.New(), func() {})
}

// drain reads every frame currently buffered on a session's OutChan,
// decoded as a map, without blocking past what's already queued.
func drain(t *testing.T, s *session.Session) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for {
		select {
		case b := <-s.OutChan:
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(b, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func lastFrame(frames []map[string]interface{}, typ string) map[string]interface{} {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i]["type"] == typ {
			return frames[i]
		}
	}
	return nil
}

func twoPlayerQuiz() *quiz.Quiz {
	return &quiz.Quiz{
		Title: "arithmetic",
		Questions: []quiz.Question{
			{Prompt: "2+2", Type: quiz.TypeSingle, Options: []string{"3", "4", "5"}, CorrectSingle: 1, Point: 10, TimeLimit: 30},
		},
	}
}

func setupLobby(t *testing.T, q *quiz.Quiz, mode Mode) (*Lobby, *session.Session, []*session.Session, []*store.User, *mockGateway) {
	gw := newMockGateway()
	host := testSession()
	hostUser := &store.User{ID: "host-1", Username: "Teacher T"}
	l := New("ABC123", "game-1", host, hostUser, q, mode, false, gw, logrus.New())

	var players []*session.Session
	var users []*store.User
	for i := 0; i < 2; i++ {
		s := testSession()
		u := &store.User{ID: string(rune('a' + i)), Username: string(rune('A' + i))}
		l.AddPlayer(s, u)
		players = append(players, s)
		users = append(users, u)
	}
	drain(t, host)
	for _, p := range players {
		drain(t, p)
	}
	return l, host, players, users, gw
}

func TestStartGameSendsQuestionAndArmsTimer(t *testing.T) {
	l, host, players, _, _ := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	require.NoError(t, l.StartGame(l.HostUserID))

	hf := lastFrame(drain(t, host), typeQuestion)
	require.NotNil(t, hf)
	assert.Equal(t, "2+2", hf["question"])

	pf := lastFrame(drain(t, players[0]), typeQuestion)
	require.NotNil(t, pf)

	l.mu.Lock()
	armed := l.timer != nil
	l.mu.Unlock()
	assert.True(t, armed)
}

func TestStartGameRejectsNonHost(t *testing.T) {
	l, _, _, _, _ := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	err := l.StartGame("someone-else")
	assert.ErrorIs(t, err, errNotHost)
}

func TestSaveAnswerScoresCorrectAnswerAndClosesRoundWhenAllAnswered(t *testing.T) {
	l, host, players, users, _ := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	require.NoError(t, l.StartGame(l.HostUserID))
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])

	l.SaveAnswer(users[0].ID, float64(1)) // correct
	l.SaveAnswer(users[1].ID, float64(0)) // wrong

	p0Frames := drain(t, players[0])
	saved := lastFrame(p0Frames, typeAnswerSaved)
	require.NotNil(t, saved)
	assert.Equal(t, true, saved["correct"])
	assert.Equal(t, float64(10), saved["points_earned"])

	ended := lastFrame(p0Frames, typeRoundEnded)
	require.NotNil(t, ended)
	assert.Equal(t, float64(10), ended["question_points"])

	hostFrames := drain(t, host)
	results := lastFrame(hostFrames, typeRoundResults)
	require.NotNil(t, results)
	assert.Equal(t, float64(1), results["right"])
	assert.Equal(t, float64(1), results["wrong"])
}

func TestSaveAnswerTwiceIsRejectedAndDoesNotDoubleScore(t *testing.T) {
	l, host, players, users, _ := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	require.NoError(t, l.StartGame(l.HostUserID))
	drain(t, host)
	drain(t, players[0])

	l.SaveAnswer(users[0].ID, float64(1))
	drain(t, players[0])
	l.SaveAnswer(users[0].ID, float64(1))

	frames := drain(t, players[0])
	errFrame := lastFrame(frames, typeError)
	require.NotNil(t, errFrame)
	assert.Contains(t, errFrame["error"], "already answered")

	l.mu.Lock()
	score := l.scoreboard[users[0].ID]
	records := len(l.userAnswers[users[0].ID])
	l.mu.Unlock()
	assert.Equal(t, 10, score)
	assert.Equal(t, 1, records)
}

func TestMissedAnswerRecordedOnTimerExpiry(t *testing.T) {
	q := twoPlayerQuiz()
	q.Questions[0].TimeLimit = 1 // seconds; armTimerLocked converts to time.Duration
	l, host, players, users, _ := setupLobby(t, q, ModeNormal)

	require.NoError(t, l.StartGame(l.HostUserID))
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])

	l.SaveAnswer(users[0].ID, float64(1))
	drain(t, players[0])

	l.mu.Lock()
	dispatchRound := l.currentQuestion
	l.mu.Unlock()

	l.mu.Lock()
	l.finishRoundLocked(dispatchRound)
	l.mu.Unlock()

	p1Frames := drain(t, players[1])
	ended := lastFrame(p1Frames, typeRoundEnded)
	require.NotNil(t, ended)
	assert.Equal(t, true, ended["missed"])
	assert.Equal(t, float64(10), ended["question_points"])

	l.mu.Lock()
	records := l.userAnswers[users[1].ID]
	l.mu.Unlock()
	require.Len(t, records, 1)
	assert.True(t, records[0].Missed)
	assert.Nil(t, records[0].UserAnswer)
}

func TestStaleTimerIsNoOpAfterAllAnswered(t *testing.T) {
	l, host, players, users, _ := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	require.NoError(t, l.StartGame(l.HostUserID))
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])

	l.SaveAnswer(users[0].ID, float64(1))
	l.SaveAnswer(users[1].ID, float64(1)) // closes the round via all-answered
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])

	// A stale timer for the same round must be a no-op: finishRoundLocked
	// re-entry guards on roundActive, which is already false.
	l.mu.Lock()
	l.finishRoundLocked(0)
	l.mu.Unlock()

	assert.Empty(t, drain(t, host))
}

func TestLastQuestionTimerEmitsLastQuestionCompleted(t *testing.T) {
	q := &quiz.Quiz{Questions: []quiz.Question{
		{Prompt: "only", Type: quiz.TypeSingle, CorrectSingle: 0, Point: 1, TimeLimit: 1},
	}}
	l, host, players, _, _ := setupLobby(t, q, ModeNormal)
	require.NoError(t, l.StartGame(l.HostUserID))
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])

	// Let the real one-second round timer fire for the only question.
	time.Sleep(1500 * time.Millisecond)

	lastCompleted := lastFrame(drain(t, host), typeLastQuestionCompleted)
	require.NotNil(t, lastCompleted)
}

func TestTabTrackingIncrementsAndReports(t *testing.T) {
	l, host, players, users, _ := setupLobby(t, twoPlayerQuiz(), ModeTabTracking)
	l.OnTabEvent(users[0].ID)
	l.OnTabEvent(users[0].ID)
	l.OnTabEvent(users[0].ID)

	hostFrames := drain(t, host)
	var totals []float64
	for _, f := range hostFrames {
		if f["type"] == typeTabSwitchReport {
			totals = append(totals, f["total"].(float64))
		}
	}
	assert.Equal(t, []float64{1, 2, 3}, totals)

	pFrames := drain(t, players[0])
	recorded := lastFrame(pFrames, typeTabSwitchRecorded)
	require.NotNil(t, recorded)
	assert.Equal(t, float64(3), recorded["total"])
}

func TestLockdownKicksOnFirstReport(t *testing.T) {
	l, host, players, users, _ := setupLobby(t, twoPlayerQuiz(), ModeLockdown)
	l.OnTabEvent(users[0].ID)

	// The kicked frame must already be sitting on OutChan before the
	// close request is issued, so a write pump draining OutChan would
	// see it ahead of the close (spec §7: frame, then socket close 1008).
	select {
	case req := <-players[0].CloseChan:
		assert.Equal(t, 1008, req.Code)
		assert.Equal(t, "lockdown_violation", req.Reason)
	default:
		t.Fatal("expected a close request on the kicked player's session")
	}

	kicked := lastFrame(drain(t, players[0]), typeKicked)
	require.NotNil(t, kicked)
	assert.Equal(t, "lockdown_violation", kicked["reason"])

	hostFrames := drain(t, host)
	require.NotNil(t, lastFrame(hostFrames, typePlayerKicked))
	require.NotNil(t, lastFrame(hostFrames, typePlayersUpdated))

	remaining := lastFrame(drain(t, players[1]), typePlayerRemoved)
	require.NotNil(t, remaining)

	l.mu.Lock()
	_, stillPresent := l.byID[users[0].ID]
	l.mu.Unlock()
	assert.False(t, stillPresent)
}

func TestFinishGameIsIdempotent(t *testing.T) {
	l, host, players, users, gw := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	require.NoError(t, l.StartGame(l.HostUserID))
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])

	l.SaveAnswer(users[0].ID, float64(1))
	l.SaveAnswer(users[1].ID, float64(0))
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])

	require.NoError(t, l.FinishGame(l.HostUserID))
	require.NotNil(t, lastFrame(drain(t, host), typeGameFinished))
	require.NoError(t, l.FinishGame(l.HostUserID)) // second call must not re-send or re-persist

	secondRoundHostFrames := drain(t, host)
	assert.Empty(t, secondRoundHostFrames, "idempotent FinishGame must not emit a second game_finished")

	// allow the fire-and-forget persistence goroutine to run
	time.Sleep(20 * time.Millisecond)
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.True(t, gw.finalized)
	assert.Len(t, gw.results, 2)
}

func TestHandleHostDisconnectDeletesUnfinishedGame(t *testing.T) {
	l, _, _, _, gw := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	l.HandleHostDisconnect()
	time.Sleep(20 * time.Millisecond)
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.True(t, gw.deleted)
}

func TestHandleHostDisconnectKeepsFinishedGame(t *testing.T) {
	l, host, players, users, gw := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	require.NoError(t, l.StartGame(l.HostUserID))
	drain(t, host)
	drain(t, players[0])
	drain(t, players[1])
	l.SaveAnswer(users[0].ID, float64(1))
	l.SaveAnswer(users[1].ID, float64(1))
	require.NoError(t, l.FinishGame(l.HostUserID))

	l.HandleHostDisconnect()
	time.Sleep(20 * time.Millisecond)
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.False(t, gw.deleted)
}

func TestHandleParticipantDisconnectReportsEmptyLobby(t *testing.T) {
	l, host, players, users, _ := setupLobby(t, twoPlayerQuiz(), ModeNormal)
	empty := l.HandleParticipantDisconnect(users[0].ID)
	assert.False(t, empty)
	drain(t, host)

	empty = l.HandleParticipantDisconnect(users[1].ID)
	assert.True(t, empty)
	_ = players
}
