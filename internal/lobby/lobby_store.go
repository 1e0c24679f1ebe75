// internal/lobby/lobby_store.go
package lobby

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry is the process-wide code->Lobby map (spec §2 Registry, §5
// "Shared resources"). Adapted from the teacher's LobbyStore: same
// mutex-guarded map shape, keyed by the human-typeable room code
// instead of a UUID, since joins arrive by code.
type Registry struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby
	log     *logrus.Entry
}

// NewRegistry initializes and returns an empty Registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		lobbies: make(map[string]*Lobby),
		log:     logger.WithField("component", "registry"),
	}
}

// Add registers a new lobby under its code. Logs and declines if the
// code is already taken, which would indicate a code-generator bug.
func (r *Registry) Add(l *Lobby) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lobbies[l.Code]; exists {
		r.log.Warnf("attempted to add lobby %s which already exists", l.Code)
		return
	}
	r.lobbies[l.Code] = l
}

// Delete removes a lobby from the registry by code.
func (r *Registry) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lobbies, code)
}

// Get retrieves a lobby by code.
func (r *Registry) Get(code string) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[code]
	return l, ok
}

// CodeExists reports whether code is already in use by an in-memory
// lobby, satisfying half of the Code Generator's uniqueness check
// (spec §4.1); the other half is the external store's CodeExists.
func (r *Registry) CodeExists(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lobbies[code]
	return ok
}
