// Package codegen generates short, unique, human-typeable room codes.
// Grounded on original_source/Back/main.py's generate_unique_game_code:
// draw a random fixed-length string, re-roll against a uniqueness check
// until a free one turns up.
package codegen

import (
	"context"
	"errors"
	"math/rand/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxAttempts bounds the retry loop so a saturated code space fails fast
// instead of spinning forever, unlike the original source's unbounded
// while True.
const maxAttempts = 32

// ErrCodeExhausted is returned when maxAttempts draws all collided.
var ErrCodeExhausted = errors.New("codegen: exhausted attempts without finding a free code")

// Exists reports whether a candidate code is already in use.
type Exists func(ctx context.Context, code string) (bool, error)

// New draws a random length-character code from the uppercase-letter and
// digit alphabet, re-rolling against exists until it finds one not in use.
func New(ctx context.Context, length int, exists Exists) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := draw(length)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrCodeExhausted
}

func draw(length int) string {
	if length <= 0 {
		return ""
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// digitsOnly mirrors the original source's older generate_room_code
// variant (digits-only codes checked against an in-memory lobby list
// rather than the store). Unused by any handler in this module — the
// store-backed alphanumeric generator above is what every SPEC_FULL.md
// component calls — kept only as a parity note with the original's two
// parallel code generators.
func digitsOnly(length int) string {
	const digits = "0123456789"
	if length <= 0 {
		return ""
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = digits[rand.IntN(len(digits))]
	}
	return string(b)
}
