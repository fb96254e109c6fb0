// Package notify publishes run state changes to subscribers outside the process.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix is the redis channel prefix; the workspace id is appended.
const ChannelPrefix = "commandcenter:runs:"

// RunEvent is published after every committed run transition.
type RunEvent struct {
	RunID        string    `json:"run_id"`
	WorkspaceID  string    `json:"workspace_id"`
	Status       string    `json:"status"`
	RuntimeState *string   `json:"runtime_state"`
	At           time.Time `json:"at"`
}

// Channel returns the channel events for a workspace are published on.
func Channel(workspaceID string) string {
	return ChannelPrefix + workspaceID
}

// Nop discards events. Used when redis is not configured.
type Nop struct{}

func (Nop) RunChanged(context.Context, RunEvent) error { return nil }

// Redis publishes events with PUBLISH.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Redis{rdb: rdb}, nil
}

// RunChanged publishes ev on the workspace channel.
func (r *Redis) RunChanged(ctx context.Context, ev RunEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode run event: %w", err)
	}

	if err := r.rdb.Publish(ctx, Channel(ev.WorkspaceID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	return nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
