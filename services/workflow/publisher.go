package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

const (
	DefaultChannelPrefix = "galaxyflow:events"
	publishTimeout       = 2 * time.Second
)

// RedisPublisher is a flow.Observer that fans run events out over Redis
// pub/sub, one channel per workspace. Publishing is best effort.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel is the pub/sub channel events of workspaceID are published on.
func (p *RedisPublisher) Channel(workspaceID string) string {
	return p.prefix + ":" + workspaceID
}

func (p *RedisPublisher) OnEvent(ctx context.Context, ev flow.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode event", "execution_id", ev.ExecutionID, "type", ev.Type, "error", err)
		return
	}

	// A cancelled run still reports its end.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.Channel(ev.WorkspaceID), data).Err(); err != nil {
		slog.Warn("Failed to publish event", "execution_id", ev.ExecutionID, "type", ev.Type, "error", err)
	}
}
