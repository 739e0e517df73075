// Package questionnaire models the fixed-length question series as a pure
// function of how many answers a user has recorded.
package questionnaire

import "fmt"

// TotalQuestions is the length of every questionnaire.
const TotalQuestions = 10

// Kind identifies where a user is in the questionnaire.
type Kind int

const (
	// AwaitingFirstAnswer means no answers are recorded yet.
	AwaitingFirstAnswer Kind = iota
	// AwaitingAnswer means at least one answer is recorded and more remain.
	AwaitingAnswer
	// Complete means all TotalQuestions answers are recorded.
	Complete
)

func (k Kind) String() string {
	switch k {
	case AwaitingFirstAnswer:
		return "awaiting_first_answer"
	case AwaitingAnswer:
		return "awaiting_answer"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is only produced by Evaluate, so Next never exceeds TotalQuestions.
type State struct {
	kind     Kind
	answered int
}

// Evaluate derives the state from the number of recorded answers. Negative
// counts are treated as zero.
func Evaluate(answered int) State {
	switch {
	case answered >= TotalQuestions:
		return State{kind: Complete, answered: answered}
	case answered <= 0:
		return State{kind: AwaitingFirstAnswer}
	default:
		return State{kind: AwaitingAnswer, answered: answered}
	}
}

// Kind reports which phase the questionnaire is in.
func (s State) Kind() Kind { return s.kind }

// Answered is the number of recorded answers, zero for a fresh user.
func (s State) Answered() int { return s.answered }

// IsComplete reports whether every question has been answered.
func (s State) IsComplete() bool { return s.kind == Complete }

// Next returns the 1-based sequence number of the question awaiting an
// answer, or 0 when the questionnaire is complete.
func (s State) Next() int {
	if s.kind == Complete {
		return 0
	}
	return s.answered + 1
}

// SequenceError reports a submission whose sequence number is not the one
// the questionnaire is waiting for.
type SequenceError struct {
	Expected int
	Got      int
}

func (e *SequenceError) Error() string {
	if e.Expected == 0 {
		return fmt.Sprintf("questionnaire: already complete, got answer for question %d", e.Got)
	}
	return fmt.Sprintf("questionnaire: invalid question number, expected %d, got %d", e.Expected, e.Got)
}

// ValidateSubmission accepts seq only when it equals answered+1 and the
// questionnaire is not complete.
func ValidateSubmission(answered, seq int) error {
	s := Evaluate(answered)
	if s.IsComplete() || seq != s.Next() {
		return &SequenceError{Expected: s.Next(), Got: seq}
	}
	return nil
}
