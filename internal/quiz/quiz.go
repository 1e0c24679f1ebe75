// Package quiz holds the immutable quiz/question data model and the
// correctness evaluation rules for each question type.
package quiz

import "strings"

// Type identifies how a Question is answered and scored.
type Type string

const (
	TypeSingle   Type = "single"
	TypeMultiple Type = "multiple"
	TypeText     Type = "text"
)

// Question is one prompt in a Quiz. Exactly one of CorrectSingle/CorrectSet/
// TextAnswer is meaningful, determined by Type.
type Question struct {
	Prompt      string
	Type        Type
	Options     []string // absent for TypeText
	Point       int      // default 1
	TimeLimit   int      // seconds
	Explanation string

	CorrectSingle int          // meaningful for TypeSingle
	CorrectSet    map[int]bool // meaningful for TypeMultiple
	TextAnswer    string       // meaningful for TypeText

}

// Points returns the question's point value, defaulting to 1.
func (q Question) Points() int {
	if q.Point <= 0 {
		return 1
	}
	return q.Point
}

// Sanitized is the wire representation of a Question with reveal-only
// fields (correct, textAnswer) stripped. Always built from a copy of the
// stored Question so the original never mutates (see DESIGN.md: the source
// deletes "correct" from the live quiz object in one code path, which this
// avoids by construction).
type Sanitized struct {
	Type        string   `json:"type"`
	Question    string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	Points      int      `json:"points"`
	TimeLimit   int      `json:"timeLimit"`
	Explanation string   `json:"explanation,omitempty"`
}

// Sanitize returns the wire-safe copy of q for dispatch to clients.
func (q Question) Sanitize() Sanitized {
	return Sanitized{
		Type:        string(q.Type),
		Question:    q.Prompt,
		Options:     q.Options,
		Points:      q.Points(),
		TimeLimit:   q.TimeLimit,
		Explanation: q.Explanation,
	}
}

// CorrectPayload returns the canonical "correct" value for AnswerRecord
// snapshots, in the same shape the client originally submitted against.
func (q Question) CorrectPayload() interface{} {
	switch q.Type {
	case TypeSingle:
		return q.CorrectSingle
	case TypeMultiple:
		out := make([]int, 0, len(q.CorrectSet))
		for idx := range q.CorrectSet {
			out = append(out, idx)
		}
		return out
	case TypeText:
		return q.TextAnswer
	default:
		return nil
	}
}

// Evaluate reports whether v is a correct submission for q.
func (q Question) Evaluate(v Answer) bool {
	switch q.Type {
	case TypeSingle:
		return v.Kind == TypeSingle && v.Int == q.CorrectSingle
	case TypeMultiple:
		if v.Kind != TypeMultiple {
			return false
		}
		selected := make(map[int]bool, len(v.Ints))
		for _, idx := range v.Ints {
			if !q.CorrectSet[idx] {
				return false
			}
			selected[idx] = true
		}
		return len(selected) == len(q.CorrectSet)
	case TypeText:
		if v.Kind != TypeText {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(v.Text), strings.TrimSpace(q.TextAnswer))
	default:
		return false
	}
}

// Quiz is an immutable, ordered list of Questions under a title.
type Quiz struct {
	Title     string
	Questions []Question
}
