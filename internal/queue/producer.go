package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
	"github.com/helpdesk-cloud/faqd/internal/metrics"
)

// Producer appends enrichment tasks to the stream.
type Producer struct {
	client *Client
	logger *zap.Logger
}

// NewProducer creates a producer over an established stream client.
func NewProducer(client *Client, logger *zap.Logger) *Producer {
	return &Producer{client: client, logger: logger}
}

// Enqueue appends one task for the entry. The stream is the durability
// boundary: once XADD returns the task survives producer restarts.
func (p *Producer) Enqueue(ctx context.Context, entry domain.Entry) error {
	return p.enqueue(ctx, NewTask(entry))
}

func (p *Producer) enqueue(ctx context.Context, task Task) error {
	payload, err := encodeTask(task)
	if err != nil {
		return err
	}

	cmd := p.client.client.B().Xadd().
		Key(p.client.stream).Id("*").
		FieldValue().FieldValue(taskField, payload).
		Build()
	if err := p.client.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("enqueueing task: %w", err)
	}

	metrics.EnrichmentTasksTotal.WithLabelValues("enqueued").Inc()
	p.logger.Debug("Enqueued enrichment task",
		zap.String("collection", task.Collection),
		zap.Int("attempts", task.Attempts),
	)
	return nil
}
