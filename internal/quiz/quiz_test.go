package quiz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionEvaluateSingle(t *testing.T) {
	q := Question{Type: TypeSingle, CorrectSingle: 1, Point: 10}

	correct, err := ParseAnswer(TypeSingle, float64(1))
	require.NoError(t, err)
	assert.True(t, q.Evaluate(correct))

	wrong, err := ParseAnswer(TypeSingle, float64(0))
	require.NoError(t, err)
	assert.False(t, q.Evaluate(wrong))
}

func TestQuestionEvaluateMultipleIsSetEquality(t *testing.T) {
	q := Question{Type: TypeMultiple, CorrectSet: map[int]bool{0: true, 2: true}}

	// Order-insensitive: [2, 0] must match the stored set {0, 2}.
	reordered, err := ParseAnswer(TypeMultiple, []interface{}{float64(2), float64(0)})
	require.NoError(t, err)
	assert.True(t, q.Evaluate(reordered), "multiple-choice correctness must be set equality, not ordered equality")

	partial, err := ParseAnswer(TypeMultiple, []interface{}{float64(0)})
	require.NoError(t, err)
	assert.False(t, q.Evaluate(partial))

	extra, err := ParseAnswer(TypeMultiple, []interface{}{float64(0), float64(1), float64(2)})
	require.NoError(t, err)
	assert.False(t, q.Evaluate(extra))
}

func TestQuestionEvaluateTextTrimAndCaseInsensitive(t *testing.T) {
	q := Question{Type: TypeText, TextAnswer: "Paris"}

	v, err := ParseAnswer(TypeText, "  paris ")
	require.NoError(t, err)
	assert.True(t, q.Evaluate(v))

	v2, err := ParseAnswer(TypeText, "London")
	require.NoError(t, err)
	assert.False(t, q.Evaluate(v2))
}

func TestQuestionPointsDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, Question{}.Points())
	assert.Equal(t, 5, Question{Point: 5}.Points())
}

func TestSanitizeStripsCorrectAnswer(t *testing.T) {
	q := Question{
		Prompt:     "2+2?",
		Type:       TypeSingle,
		Options:    []string{"3", "4", "5"},
		CorrectSingle: 1,
		Point:      10,
		TimeLimit:  30,
	}
	s := q.Sanitize()
	assert.Equal(t, "2+2?", s.Question)
	assert.Equal(t, 10, s.Points)
	assert.Equal(t, 30, s.TimeLimit)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.NotContains(t, wire, "correct")
	assert.NotContains(t, wire, "textAnswer")
}
