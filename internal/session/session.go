// Package session tracks one WebSocket connection's identity and
// outbound message pump. Grounded on the teacher's
// internal/lobby.LobbyConnection: a per-connection struct carrying the
// resolved user, a buffered outbound channel written to
// non-blockingly, and a cancel func for tearing down the read/write
// pumps.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizroom/internal/store"
	"github.com/sirupsen/logrus"
)

// outChanCapacity bounds how far a slow client can lag before messages
// start getting dropped rather than blocking the round engine.
const outChanCapacity = 16

// CloseRequest asks the connection's write pump to flush whatever is
// still buffered on OutChan and then close with a specific WebSocket
// close code, instead of the generic teardown Cancel triggers. Needed
// for paths like a lockdown kick (spec §4.5.7, §6.2) where the close
// code is part of the observable protocol, not just connection cleanup.
type CloseRequest struct {
	Code   int
	Reason string
}

// Session is one live WebSocket connection. It starts unauthenticated
// (spec §4.3: the first frame on every connection must be an auth
// frame) and is promoted to authenticated once fetch_user resolves.
type Session struct {
	ID uuid.UUID

	OutChan   chan []byte
	CloseChan chan CloseRequest
	Cancel    func()

	mu            sync.RWMutex
	authenticated bool
	user          *store.User
	lobbyCode     string
	isHost        bool

	log *logrus.Entry
}

// New creates an unauthenticated session bound to a cancel func that
// tears down the connection's read/write pumps.
func New(logger *logrus.Logger, cancel func()) *Session {
	id := uuid.New()
	return &Session{
		ID:        id,
		OutChan:   make(chan []byte, outChanCapacity),
		CloseChan: make(chan CloseRequest, 1),
		Cancel:    cancel,
		log:       logger.WithField("session", id.String()),
	}
}

// Authenticate promotes the session to authenticated and binds it to a
// resolved user. Called once, after fetch_user succeeds.
func (s *Session) Authenticate(u *store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.user = u
}

// Authenticated reports whether Authenticate has been called.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// User returns the bound user, or nil if not yet authenticated.
func (s *Session) User() *store.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// JoinLobby records which lobby this session is attached to and
// whether it is that lobby's host.
func (s *Session) JoinLobby(code string, isHost bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbyCode = code
	s.isHost = isHost
}

// LobbyCode returns the code of the lobby this session has joined, or
// "" if it hasn't joined one yet.
func (s *Session) LobbyCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lobbyCode
}

// IsHost reports whether this session is the host of its lobby.
func (s *Session) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHost
}

// Write pushes a raw frame onto the outbound channel without blocking.
// A full channel means the writer pump has fallen behind or has exited;
// the frame is dropped and logged rather than stalling the caller
// (mirrors LobbyConnection.Write in the teacher repo). OutChan is never
// closed.
func (s *Session) Write(frame []byte) {
	select {
	case s.OutChan <- frame:
	default:
		s.log.Warn("outbound channel full, dropping frame")
	}
}

// RequestClose asks the write pump to drain OutChan and close the
// socket with the given protocol close code, once whatever was already
// enqueued (e.g. a "kicked" frame) has gone out. Non-blocking: a second
// request before the first is serviced is dropped.
func (s *Session) RequestClose(code int, reason string) {
	select {
	case s.CloseChan <- CloseRequest{Code: code, Reason: reason}:
	default:
	}
}
