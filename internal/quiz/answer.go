package quiz

import "fmt"

// Answer is a tagged variant over the heterogeneous submission shapes the
// wire protocol allows for the "answer" field: an int index for single-
// choice questions, a list of indices for multiple-choice, or a string for
// free text. Modeled after the teacher's GameMessage/GameAction pattern of
// carrying a raw map[string]interface{} payload and type-switching it once,
// at the point of use, rather than threading interface{} through the round
// engine.
type Answer struct {
	Kind Type
	Int  int
	Ints []int
	Text string
}

// ParseAnswer converts a decoded JSON value (as produced by
// encoding/json's map[string]interface{} unmarshaling, where JSON numbers
// arrive as float64) into an Answer matching the question's type.
func ParseAnswer(qtype Type, raw interface{}) (Answer, error) {
	switch qtype {
	case TypeSingle:
		idx, err := asInt(raw)
		if err != nil {
			return Answer{}, fmt.Errorf("single-choice answer must be an index: %w", err)
		}
		return Answer{Kind: TypeSingle, Int: idx}, nil

	case TypeMultiple:
		raws, ok := raw.([]interface{})
		if !ok {
			return Answer{}, fmt.Errorf("multiple-choice answer must be a list of indices")
		}
		ints := make([]int, 0, len(raws))
		for _, r := range raws {
			idx, err := asInt(r)
			if err != nil {
				return Answer{}, fmt.Errorf("multiple-choice answer entry invalid: %w", err)
			}
			ints = append(ints, idx)
		}
		return Answer{Kind: TypeMultiple, Ints: ints}, nil

	case TypeText:
		text, ok := raw.(string)
		if !ok {
			return Answer{}, fmt.Errorf("text answer must be a string")
		}
		return Answer{Kind: TypeText, Text: text}, nil

	default:
		return Answer{}, fmt.Errorf("unknown question type %q", qtype)
	}
}

// Raw returns the value in the shape it should be echoed back in an
// AnswerRecord snapshot (mirrors whatever the client originally sent).
func (a Answer) Raw() interface{} {
	switch a.Kind {
	case TypeSingle:
		return a.Int
	case TypeMultiple:
		return a.Ints
	case TypeText:
		return a.Text
	default:
		return nil
	}
}

func asInt(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
}
