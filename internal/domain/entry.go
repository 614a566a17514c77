package domain

import "strings"

// DefaultCollection is the search space used when a request names none.
const DefaultCollection = "faq"

// Entry is a persisted question/answer pair with its embedding.
type Entry struct {
	Content    string
	Answer     string
	Collection string
	Embedding  []float32
}

// Validate checks the invariants every stored entry must hold.
func (e Entry) Validate(dimensions int) error {
	if strings.TrimSpace(e.Content) == "" || strings.TrimSpace(e.Answer) == "" {
		return ErrInvalidInput
	}
	if len(e.Embedding) != dimensions {
		return ErrDimensionMismatch
	}
	return nil
}

// Match is the best corpus entry for a query vector together with the
// similarity score the store computed for it, in [-1, 1].
type Match struct {
	Content string
	Answer  string
	Score   float64
}
