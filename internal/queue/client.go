package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"
)

// Config holds connection parameters for the enrichment stream.
type Config struct {
	Addrs    []string
	Password string
	Stream   string
	Group    string
}

// Client wraps a rueidis connection scoped to one stream.
type Client struct {
	client rueidis.Client
	stream string
	group  string
}

// NewClient connects to Redis.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Stream == "" || cfg.Group == "" {
		return nil, fmt.Errorf("stream and group are required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Client{client: client, stream: cfg.Stream, group: cfg.Group}, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	cmd := c.client.B().Ping().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (c *Client) Close() {
	c.client.Close()
}

// WaitForReady polls Ping until Redis responds or timeout expires.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := c.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// EnsureGroup creates the consumer group, creating the stream if needed.
// An already existing group is not an error.
func (c *Client) EnsureGroup(ctx context.Context) error {
	cmd := c.client.B().XgroupCreate().
		Key(c.stream).Group(c.group).Id("0").Mkstream().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("creating consumer group %s: %w", c.group, err)
	}
	return nil
}

// isRedisErr checks if err is a Redis server error containing substr.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToUpper(re.Error()), strings.ToUpper(substr))
}
