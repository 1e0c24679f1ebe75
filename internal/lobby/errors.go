package lobby

import "errors"

// StateError-class sentinels (spec §7): an action attempted from the
// wrong state or by the wrong caller. Handlers translate these into an
// error frame rather than mutating state.
var (
	errNotHost         = errors.New("lobby: caller is not the host")
	errAlreadyStarted  = errors.New("lobby: game already started")
	errWrongState      = errors.New("lobby: action not valid in current round state")
)
