package ws

import "encoding/json"

// frame mirrors internal/lobby's tiny map-based frame builder; kept as
// a separate type here since ws and lobby intentionally don't share an
// import for this (ws only ever builds a handful of ad-hoc frames of
// its own — auth/session/join bookkeeping — everything round-related
// is built and sent by the lobby itself).
type frame map[string]interface{}

func (f frame) encode() []byte {
	b, err := json.Marshal(f)
	if err != nil {
		b, _ = json.Marshal(frame{"type": "error", "error": "internal encode failure"})
	}
	return b
}

func errorFrame(msg string) []byte {
	return frame{"type": "error", "error": msg}.encode()
}
