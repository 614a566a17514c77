package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/metrics"
)

const readBatch = 16

// Handler processes one decoded task. A nil return acknowledges the task;
// an error sends it back for a bounded number of retries.
type Handler func(ctx context.Context, task Task) error

// ConsumerConfig tunes the read loop.
type ConsumerConfig struct {
	Name         string // consumer name within the group, unique per process
	MaxAttempts  int    // total deliveries before a task is dropped
	BlockMsec    int    // XREADGROUP block interval
	ClaimMinIdle time.Duration
}

// Consumer reads tasks from the stream and feeds them to a handler.
// Failed tasks are acknowledged and re-enqueued with an incremented
// attempt count, so a poison task cannot wedge the pending list.
type Consumer struct {
	client  *Client
	cfg     ConsumerConfig
	handler Handler
	logger  *zap.Logger
}

// NewConsumer creates a consumer. The group must exist; call
// Client.EnsureGroup first.
func NewConsumer(client *Client, cfg ConsumerConfig, handler Handler, logger *zap.Logger) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BlockMsec <= 0 {
		cfg.BlockMsec = 5000
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = time.Minute
	}
	return &Consumer{client: client, cfg: cfg, handler: handler, logger: logger}
}

// Run blocks reading the stream until ctx is cancelled. Each iteration first
// claims entries abandoned by dead consumers, then reads new ones.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Enrichment consumer started",
		zap.String("stream", c.client.stream),
		zap.String("group", c.client.group),
		zap.String("consumer", c.cfg.Name),
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.claimAbandoned(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("Claiming abandoned tasks failed", zap.Error(err))
		}
		if err := c.readNew(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("Reading tasks failed", zap.Error(err))
			time.Sleep(time.Second)
		}
	}
}

func (c *Consumer) readNew(ctx context.Context) error {
	cmd := c.client.client.B().Xreadgroup().
		Group(c.client.group, c.cfg.Name).
		Count(readBatch).
		Block(int64(c.cfg.BlockMsec)).
		Streams().Key(c.client.stream).Id(">").
		Build()

	res := c.client.client.Do(ctx, cmd)
	if err := res.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil // block interval elapsed without entries
		}
		return fmt.Errorf("xreadgroup: %w", err)
	}

	streams, err := res.AsXRead()
	if err != nil {
		return fmt.Errorf("parsing xreadgroup reply: %w", err)
	}
	for _, entries := range streams {
		for _, entry := range entries {
			c.handle(ctx, entry.ID, entry.FieldValues[taskField])
		}
	}
	return nil
}

// claimAbandoned transfers entries pending longer than ClaimMinIdle to this
// consumer and processes them.
func (c *Consumer) claimAbandoned(ctx context.Context) error {
	minIdle := strconv.FormatInt(c.cfg.ClaimMinIdle.Milliseconds(), 10)
	cmd := c.client.client.B().Xautoclaim().
		Key(c.client.stream).
		Group(c.client.group).
		Consumer(c.cfg.Name).
		MinIdleTime(minIdle).
		Start("0-0").
		Count(readBatch).
		Build()

	res := c.client.client.Do(ctx, cmd)
	if err := res.Error(); err != nil {
		return fmt.Errorf("xautoclaim: %w", err)
	}

	// Reply is [next-cursor, entries, ...]; each entry is [id, fields].
	reply, err := res.ToArray()
	if err != nil || len(reply) < 2 {
		return fmt.Errorf("parsing xautoclaim reply: %w", err)
	}
	entries, err := reply[1].ToArray()
	if err != nil {
		return fmt.Errorf("parsing xautoclaim entries: %w", err)
	}

	for _, entry := range entries {
		pair, err := entry.ToArray()
		if err != nil || len(pair) < 2 {
			continue
		}
		id, err := pair[0].ToString()
		if err != nil {
			continue
		}
		fields, err := pair[1].ToArray()
		if err != nil {
			continue
		}
		payload := ""
		for i := 0; i+1 < len(fields); i += 2 {
			name, _ := fields[i].ToString()
			if name == taskField {
				payload, _ = fields[i+1].ToString()
			}
		}
		c.handle(ctx, id, payload)
	}
	return nil
}

// handle runs the handler for one entry and settles it. Undecodable
// entries are acked and dropped outright.
func (c *Consumer) handle(ctx context.Context, id, payload string) {
	task, err := decodeTask(payload)
	if err != nil {
		c.logger.Error("Dropping malformed task", zap.String("id", id), zap.Error(err))
		metrics.EnrichmentTasksTotal.WithLabelValues("dropped").Inc()
		c.ack(ctx, id)
		return
	}

	if err := c.handler(ctx, task); err != nil {
		c.retryOrDrop(ctx, id, task, err)
		return
	}
	c.ack(ctx, id)
}

func (c *Consumer) retryOrDrop(ctx context.Context, id string, task Task, cause error) {
	task.Attempts++
	if task.Attempts >= c.cfg.MaxAttempts {
		c.logger.Error("Dropping task after max attempts",
			zap.String("id", id),
			zap.Int("attempts", task.Attempts),
			zap.String("collection", task.Collection),
			zap.Error(cause),
		)
		metrics.EnrichmentTasksTotal.WithLabelValues("dropped").Inc()
		c.ack(ctx, id)
		return
	}

	producer := NewProducer(c.client, c.logger)
	if err := producer.enqueue(ctx, task); err != nil {
		// Leave the entry pending so a later claim retries it.
		c.logger.Error("Re-enqueueing failed task", zap.String("id", id), zap.Error(err))
		return
	}
	metrics.EnrichmentTasksTotal.WithLabelValues("retried").Inc()
	c.logger.Warn("Task re-enqueued",
		zap.String("id", id),
		zap.Int("attempts", task.Attempts),
		zap.Error(cause),
	)
	c.ack(ctx, id)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	cmd := c.client.client.B().Xack().
		Key(c.client.stream).Group(c.client.group).Id(id).Build()
	if err := c.client.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("Acknowledging task failed", zap.String("id", id), zap.Error(err))
	}
}
