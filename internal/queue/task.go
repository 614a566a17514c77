package queue

import (
	"encoding/json"
	"fmt"

	"github.com/helpdesk-cloud/faqd/internal/domain"
)

// taskField is the stream entry field holding the JSON-encoded task.
const taskField = "task"

// Task is the wire format of one enrichment job. The embedding is optional:
// producers that already computed a vector for the question pass it along so
// the consumer can skip a second provider call.
type Task struct {
	Content    string    `json:"content"`
	Answer     string    `json:"answer"`
	Collection string    `json:"collection"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Attempts   int       `json:"attempts"`
}

// NewTask builds a task from a corpus entry with a zero attempt count.
func NewTask(entry domain.Entry) Task {
	return Task{
		Content:    entry.Content,
		Answer:     entry.Answer,
		Collection: entry.Collection,
		Embedding:  entry.Embedding,
	}
}

// Entry converts the task back into a corpus entry.
func (t Task) Entry() domain.Entry {
	return domain.Entry{
		Content:    t.Content,
		Answer:     t.Answer,
		Collection: t.Collection,
		Embedding:  t.Embedding,
	}
}

func encodeTask(t Task) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding task: %w", err)
	}
	return string(data), nil
}

func decodeTask(payload string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return Task{}, fmt.Errorf("decoding task: %w", err)
	}
	if t.Content == "" || t.Answer == "" {
		return Task{}, fmt.Errorf("task is missing content or answer: %w", domain.ErrInvalidInput)
	}
	if t.Collection == "" {
		t.Collection = domain.DefaultCollection
	}
	return t, nil
}
