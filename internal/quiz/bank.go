package quiz

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrQuestionBankEmpty indicates the catalog (or the requested zone subset)
// has no questions. Callers report a retryable message, never crash.
var ErrQuestionBankEmpty = errors.New("question bank empty")

//go:embed questions.json
var defaultQuestions []byte

// Question is a single quiz item. Answer indexes into Choices.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
	Answer  int      `json:"answer"`
	Zone    string   `json:"zone,omitempty"`
}

// Correct reports whether the given choice index answers the question.
func (q Question) Correct(choice int) bool {
	return choice == q.Answer
}

// Bank is the static question catalog, optionally partitioned by zone.
type Bank struct {
	questions []Question
	byID      map[string]Question
}

// NewBank loads the embedded default catalog.
func NewBank() (*Bank, error) {
	return NewBankFromJSON(defaultQuestions)
}

// NewBankFromJSON builds a catalog from raw JSON.
func NewBankFromJSON(data []byte) (*Bank, error) {
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	byID := make(map[string]Question, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return nil, fmt.Errorf("question %d has no id", i)
		}
		if _, dup := byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		if q.Answer < 0 || q.Answer >= len(q.Choices) {
			return nil, fmt.Errorf("question %q answer index out of range", q.ID)
		}
		byID[q.ID] = q
	}

	return &Bank{questions: questions, byID: byID}, nil
}

// Size returns the number of questions in the whole catalog.
func (b *Bank) Size() int {
	return len(b.questions)
}

// ByID looks up a question by identifier.
func (b *Bank) ByID(id string) (Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Questions returns the catalog filtered by zone; an empty zone selects the
// whole catalog.
func (b *Bank) Questions(zone string) []Question {
	if zone == "" {
		res := make([]Question, len(b.questions))
		copy(res, b.questions)
		return res
	}
	var res []Question
	for _, q := range b.questions {
		if strings.EqualFold(q.Zone, zone) {
			res = append(res, q)
		}
	}
	return res
}

// Zones lists the distinct zones present in the catalog, in first-seen order.
func (b *Bank) Zones() []string {
	seen := map[string]bool{}
	var zones []string
	for _, q := range b.questions {
		zone := strings.ToLower(q.Zone)
		if zone == "" || seen[zone] {
			continue
		}
		seen[zone] = true
		zones = append(zones, zone)
	}
	return zones
}
