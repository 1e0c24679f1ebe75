// Package lobby implements the round engine: one Lobby per active game,
// owning the question state machine, answer buffer, scoreboard,
// tab-switch counters, and the per-question timer. Grounded on the
// teacher's internal/game.CambiaGame (mutex-guarded game state,
// broadcast-outside-lock pattern, dispatch-ID-guarded turn timer) and
// this same package's original Lobby (connection bookkeeping,
// non-blocking writes).
package lobby

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/quizroom/internal/quiz"
	"github.com/jason-s-yu/quizroom/internal/session"
	"github.com/jason-s-yu/quizroom/internal/store"
	"github.com/sirupsen/logrus"
)

// Mode is the anti-cheat policy selected at creation (spec §4.5.7).
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeTabTracking Mode = "tab_tracking"
	ModeLockdown    Mode = "lockdown"
)

// closeLockdownViolation is the RFC 6455 policy-violation close code
// (spec §6.2: "1008 is used for ... lockdown violation").
const closeLockdownViolation = 1008

// AnswerRecord is the immutable per-user, per-question outcome row
// (spec §3). Mirrors store.AnswerRecordSnapshot field-for-field; kept
// as a distinct type so the round engine doesn't depend on the
// persistence package's wire tags.
type AnswerRecord struct {
	QuestionIndex  int
	Prompt         string
	Type           string
	Options        []string
	UserAnswer     interface{}
	CorrectAnswer  interface{}
	IsCorrect      bool
	PointsEarned   int
	PossiblePoints int
	Missed         bool
	Explanation    string
}

func (r AnswerRecord) snapshot() store.AnswerRecordSnapshot {
	return store.AnswerRecordSnapshot{
		QuestionIndex:  r.QuestionIndex,
		Prompt:         r.Prompt,
		Type:           r.Type,
		Options:        r.Options,
		UserAnswer:     r.UserAnswer,
		CorrectAnswer:  r.CorrectAnswer,
		IsCorrect:      r.IsCorrect,
		PointsEarned:   r.PointsEarned,
		PossiblePoints: r.PossiblePoints,
		Missed:         r.Missed,
		Explanation:    r.Explanation,
	}
}

// player is one joined participant: their session (for writes) and
// resolved profile. Join order, used for stable placement tie-breaks,
// is the player's position in Lobby.players.
type player struct {
	sess *session.Session
	user *store.User
}

// Lobby is one active game: code, quiz, mode, and all round state.
// All mutation is serialized by mu, held across each top-level event,
// matching CambiaGame.Mu in the teacher repo.
type Lobby struct {
	Code        string
	GameID      string
	HostUserID  string
	Quiz        *quiz.Quiz
	Mode        Mode
	DisableCopy bool

	mu sync.Mutex

	host        *session.Session
	players     []*player // ordered by join time
	byID        map[string]*player
	scoreboard  map[string]int
	userAnswers map[string][]AnswerRecord
	tabSwitches map[string]int

	currentQuestion int
	roundActive     bool
	started         bool
	finished        bool

	answers map[string]quiz.Answer // current round buffer

	resultsPersisted bool
	timer            *time.Timer

	gateway store.Gateway
	log     *logrus.Entry
}

// New creates a Lobby for an already-resolved game id and quiz. The
// host session is bound immediately; its user must already be
// authenticated.
func New(code, gameID string, host *session.Session, hostUser *store.User, q *quiz.Quiz, mode Mode, disableCopy bool, gateway store.Gateway, logger *logrus.Logger) *Lobby {
	return &Lobby{
		Code:            code,
		GameID:          gameID,
		HostUserID:      hostUser.ID,
		Quiz:            q,
		Mode:            mode,
		DisableCopy:     disableCopy,
		host:            host,
		byID:            map[string]*player{},
		scoreboard:      map[string]int{},
		userAnswers:     map[string][]AnswerRecord{},
		tabSwitches:     map[string]int{},
		currentQuestion: -1,
		gateway:         gateway,
		log:             logger.WithField("lobby", code),
	}
}

func (l *Lobby) send(sess *session.Session, f frame) {
	if sess == nil {
		return
	}
	sess.Write(f.encode())
}

func (l *Lobby) sendHost(f frame) {
	l.send(l.host, f)
}

func (l *Lobby) broadcastPlayers(f frame) {
	encoded := f.encode()
	for _, p := range l.players {
		p.sess.Write(encoded)
	}
}

// AddPlayer joins a user to the lobby. Late joins are allowed (spec
// §3 Lifecycle); a late joiner simply has no prior-round records.
func (l *Lobby) AddPlayer(sess *session.Session, user *store.User) {
	l.mu.Lock()
	if _, exists := l.byID[user.ID]; exists {
		l.mu.Unlock()
		return
	}
	p := &player{sess: sess, user: user}
	l.players = append(l.players, p)
	l.byID[user.ID] = p
	l.scoreboard[user.ID] = 0
	l.userAnswers[user.ID] = nil
	l.tabSwitches[user.ID] = 0
	l.broadcastScoreboardLocked()
	gameID := l.GameID
	gateway := l.gateway
	l.mu.Unlock()

	go gateway.AppendPlayer(context.Background(), gameID, user.ID)
}

func (l *Lobby) scoreboardDataLocked() map[string]interface{} {
	data := make(map[string]interface{}, len(l.players))
	for _, p := range l.players {
		data[p.user.ID] = []interface{}{p.user.Username, l.scoreboard[p.user.ID]}
	}
	return data
}

func (l *Lobby) broadcastScoreboardLocked() {
	l.broadcastPlayers(frame{"type": typeScoreboard, "data": l.scoreboardDataLocked()})
}

// StartGame transitions LOBBY_OPEN -> QUESTION_ACTIVE(0). Only the host
// may call it, and only before the game has started.
func (l *Lobby) StartGame(callerUserID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if callerUserID != l.HostUserID {
		return errNotHost
	}
	if l.started {
		return errAlreadyStarted
	}
	l.started = true
	l.startQuestionLocked(0)
	return nil
}

// StartNextRound advances QUESTION_CLOSED(q) -> QUESTION_ACTIVE(q+1),
// or, at the last question, notifies the host without changing state.
func (l *Lobby) StartNextRound(callerUserID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if callerUserID != l.HostUserID {
		return errNotHost
	}
	if l.roundActive || !l.started || l.finished {
		return errWrongState
	}
	next := l.currentQuestion + 1
	if next >= len(l.Quiz.Questions) {
		l.sendHost(frame{"type": typeLastQuestionCompleted})
		return nil
	}
	l.startQuestionLocked(next)
	return nil
}

// startQuestionLocked arms QUESTION_ACTIVE(idx). Caller holds mu.
func (l *Lobby) startQuestionLocked(idx int) {
	l.currentQuestion = idx
	l.roundActive = true
	l.answers = map[string]quiz.Answer{}

	q := l.Quiz.Questions[idx]
	sanitized := q.Sanitize()
	payload := frame{
		"type":        typeQuestion,
		"question":    sanitized.Question,
		"options":     sanitized.Options,
		"points":      sanitized.Points,
		"timeLimit":   sanitized.TimeLimit,
		"explanation": sanitized.Explanation,
	}
	l.sendHost(payload)
	l.broadcastPlayers(payload)

	l.armTimerLocked(idx, time.Duration(q.TimeLimit)*time.Second)
}

// armTimerLocked schedules the dispatch-round-guarded timeout.
// Grounded on CambiaGame.scheduleNextTurnTimer/handleTimeout: the
// callback captures the round it was armed for and re-validates
// against live state before acting, so a stale timer is a no-op.
func (l *Lobby) armTimerLocked(dispatchRound int, duration time.Duration) {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if duration <= 0 {
		return
	}
	l.timer = time.AfterFunc(duration, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.roundActive || l.currentQuestion != dispatchRound {
			l.log.Debugf("stale timer fired for round %d (current %d), ignoring", dispatchRound, l.currentQuestion)
			return
		}
		l.finishRoundLocked(dispatchRound)
		if dispatchRound == len(l.Quiz.Questions)-1 {
			l.sendHost(frame{"type": typeLastQuestionCompleted})
		}
	})
}

// SaveAnswer records one user's submission for the active question.
func (l *Lobby) SaveAnswer(userID string, raw interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[userID]
	if !ok {
		return
	}
	if !l.roundActive {
		l.send(p.sess, frame{"type": typeError, "error": "Round is not active!"})
		return
	}
	if _, already := l.answers[userID]; already {
		l.send(p.sess, frame{"type": typeError, "error": "You already answered this question!"})
		return
	}

	q := l.Quiz.Questions[l.currentQuestion]
	answer, err := quiz.ParseAnswer(q.Type, raw)
	if err != nil {
		l.send(p.sess, frame{"type": typeError, "error": err.Error()})
		return
	}
	l.answers[userID] = answer

	correct := q.Evaluate(answer)
	pointsEarned := 0
	if correct {
		pointsEarned = q.Points()
		l.scoreboard[userID] += pointsEarned
	}

	l.userAnswers[userID] = append(l.userAnswers[userID], AnswerRecord{
		QuestionIndex:  l.currentQuestion,
		Prompt:         q.Prompt,
		Type:           string(q.Type),
		Options:        q.Options,
		UserAnswer:     answer.Raw(),
		CorrectAnswer:  q.CorrectPayload(),
		IsCorrect:      correct,
		PointsEarned:   pointsEarned,
		PossiblePoints: q.Points(),
		Missed:         false,
	})

	l.broadcastScoreboardLocked()
	// Untyped progress ping (no "type" field), matching the original
	// source's bare {"answers": n} host notification; not one of the
	// enumerated frame types in spec §4.3.
	l.sendHost(frame{"answers": len(l.answers)})
	l.send(p.sess, frame{"type": typeAnswerSaved, "correct": correct, "points_earned": pointsEarned})

	if len(l.answers) == len(l.players) {
		l.finishRoundLocked(l.currentQuestion)
	}
}

// finishRoundLocked closes QUESTION_ACTIVE(q). Idempotent per q: a
// stale call (e.g. a timer firing after all-answered already closed
// the round) sees roundActive==false or a mismatched q and is a
// no-op. Caller holds mu.
func (l *Lobby) finishRoundLocked(q int) {
	if !l.roundActive || q != l.currentQuestion {
		return
	}
	l.roundActive = false
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	question := l.Quiz.Questions[q]
	right, wrong := 0, 0
	byAnswer := map[int]int{}
	totalEarned := 0

	for _, p := range l.players {
		ans, answered := l.answers[p.user.ID]
		if !answered {
			continue
		}
		records := l.userAnswers[p.user.ID]
		rec := records[len(records)-1]
		if rec.IsCorrect {
			right++
			totalEarned += rec.PointsEarned
		} else {
			wrong++
		}
		if question.Type != quiz.TypeText {
			switch ans.Kind {
			case quiz.TypeSingle:
				byAnswer[ans.Int]++
			case quiz.TypeMultiple:
				for _, idx := range ans.Ints {
					byAnswer[idx]++
				}
			}
		}
	}

	stats := frame{
		"type":                  typeRoundResults,
		"right":                 right,
		"wrong":                 wrong,
		"question_points":       question.Points(),
		"total_possible_points": question.Points() * len(l.players),
		"total_earned_points":   totalEarned,
	}
	if question.Type != quiz.TypeText {
		stats["by_answer"] = byAnswer
	}
	l.sendHost(stats)

	scoreboardData := l.scoreboardDataLocked()
	for _, p := range l.players {
		if _, answered := l.answers[p.user.ID]; answered {
			records := l.userAnswers[p.user.ID]
			rec := records[len(records)-1]
			l.send(p.sess, frame{
				"type":            typeRoundEnded,
				"correct":         rec.IsCorrect,
				"scoreboard":      scoreboardData,
				"question_points": question.Points(),
			})
			continue
		}

		// Missed: append a null AnswerRecord and notify.
		l.userAnswers[p.user.ID] = append(l.userAnswers[p.user.ID], AnswerRecord{
			QuestionIndex:  q,
			Prompt:         question.Prompt,
			Type:           string(question.Type),
			Options:        question.Options,
			UserAnswer:     nil,
			CorrectAnswer:  question.CorrectPayload(),
			IsCorrect:      false,
			PointsEarned:   0,
			PossiblePoints: question.Points(),
			Missed:         true,
		})
		l.send(p.sess, frame{
			"type":            typeRoundEnded,
			"correct":         false,
			"missed":          true,
			"scoreboard":      scoreboardData,
			"question_points": question.Points(),
		})
	}

	l.answers = map[string]quiz.Answer{}
}

// OnTabEvent reacts to a "switched_tabs" report per the lobby's Mode
// (spec §4.5.7).
func (l *Lobby) OnTabEvent(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[userID]
	if !ok {
		return
	}

	switch l.Mode {
	case ModeNormal:
		return

	case ModeTabTracking:
		l.tabSwitches[userID]++
		l.sendHost(frame{"type": typeTabSwitchReport, "user_id": userID, "total": l.tabSwitches[userID]})
		l.send(p.sess, frame{"type": typeTabSwitchRecorded, "total": l.tabSwitches[userID]})

	case ModeLockdown:
		sess := p.sess
		l.removePlayerLocked(userID)
		l.send(sess, frame{"type": typeKicked, "reason": "lockdown_violation"})
		l.sendHost(frame{"type": typePlayerKicked, "user_id": userID})
		l.broadcastPlayers(frame{"type": typePlayerRemoved, "user_id": userID})
		l.sendHost(l.playersUpdatedFrameLocked())
		if sess != nil {
			// Close with 1008 (RFC 6455 policy violation), per spec §6.2/
			// §7: the kicked frame above is already buffered on OutChan,
			// so RequestClose flushes it before the socket actually closes.
			sess.RequestClose(closeLockdownViolation, "lockdown_violation")
		}
	}
}

func (l *Lobby) removePlayerLocked(userID string) {
	delete(l.byID, userID)
	delete(l.scoreboard, userID)
	delete(l.userAnswers, userID)
	delete(l.tabSwitches, userID)
	delete(l.answers, userID)
	for i, p := range l.players {
		if p.user.ID == userID {
			l.players = append(l.players[:i], l.players[i+1:]...)
			break
		}
	}
}

func (l *Lobby) playersUpdatedFrameLocked() frame {
	ids := make([]string, 0, len(l.players))
	for _, p := range l.players {
		ids = append(ids, p.user.ID)
	}
	return frame{"type": typePlayersUpdated, "players": ids}
}

// FinishGame closes the game out: builds the final leaderboard, notifies
// everyone, and persists results. Idempotent via resultsPersisted.
func (l *Lobby) FinishGame(callerUserID string) error {
	l.mu.Lock()
	if callerUserID != l.HostUserID {
		l.mu.Unlock()
		return errNotHost
	}
	if l.resultsPersisted {
		l.mu.Unlock()
		return nil
	}
	l.resultsPersisted = true
	l.finished = true

	type placed struct {
		p     *player
		score int
		order int
	}
	ranked := make([]placed, 0, len(l.players))
	for i, p := range l.players {
		ranked = append(ranked, placed{p: p, score: l.scoreboard[p.user.ID], order: i})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	leaderboard := make([]store.LeaderboardEntry, len(ranked))
	results := make(map[string]store.PlayerResult, len(ranked))
	for i, r := range ranked {
		place := i + 1
		leaderboard[i] = store.LeaderboardEntry{
			Place:       place,
			Username:    r.p.user.Username,
			Score:       r.score,
			UserID:      r.p.user.ID,
			TabSwitches: l.tabSwitches[r.p.user.ID],
		}
		snapshots := make([]store.AnswerRecordSnapshot, 0, len(l.userAnswers[r.p.user.ID]))
		for _, rec := range l.userAnswers[r.p.user.ID] {
			snapshots = append(snapshots, rec.snapshot())
		}
		results[r.p.user.ID] = store.PlayerResult{
			UserID:         r.p.user.ID,
			Username:       r.p.user.Username,
			Score:          r.score,
			Placement:      place,
			TotalQuestions: len(l.Quiz.Questions),
			TotalPlayers:   len(l.players),
			TabSwitches:    l.tabSwitches[r.p.user.ID],
			Answers:        snapshots,
		}
		l.send(r.p.sess, frame{"type": typeGameFinished, "placement": place, "score": r.score})
	}
	l.sendHost(frame{"type": typeGameFinished, "leaderboard": leaderboard, "game_mode": string(l.Mode)})

	gameID := l.GameID
	gateway := l.gateway
	mode := string(l.Mode)
	l.mu.Unlock()

	go func() {
		ctx := context.Background()
		gateway.FinalizeGame(ctx, gameID, leaderboard, mode)
		for uid, res := range results {
			gateway.WriteResult(ctx, gameID, uid, res)
		}
	}()

	return nil
}

// Finished reports whether FinishGame has completed.
func (l *Lobby) Finished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished
}

// HandleHostDisconnect implements the host-departure teardown in spec
// §4.5.6. The caller (ws.cleanupSession) removes the lobby from the
// Registry after this returns.
func (l *Lobby) HandleHostDisconnect() {
	l.mu.Lock()
	l.broadcastPlayers(frame{"type": typeHostDisconnected})
	finished := l.finished
	gameID := l.GameID
	gateway := l.gateway
	l.mu.Unlock()

	if !finished {
		go gateway.DeleteGame(context.Background(), gameID)
	}
}

// HandleParticipantDisconnect implements the regular-player departure
// teardown in spec §4.5.6. Returns true if the lobby is now empty of
// players.
func (l *Lobby) HandleParticipantDisconnect(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[userID]; !ok {
		return len(l.players) == 0
	}
	l.removePlayerLocked(userID)
	l.broadcastPlayers(frame{"type": typePlayerDisconnected, "user_id": userID})
	l.sendHost(l.playersUpdatedFrameLocked())
	return len(l.players) == 0
}
