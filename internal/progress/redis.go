package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "plotcraft:events:"
	replayPrefix  = "plotcraft:replay:"
	seqPrefix     = "plotcraft:seq:"
)

// DefaultReplayLimit caps the replay list per session.
const DefaultReplayLimit = 500

// DefaultReplayTTL matches the default session TTL.
const DefaultReplayTTL = 2 * time.Hour

// RedisSink publishes events on a per-session channel and keeps a bounded
// replay list so polling clients can catch up.
type RedisSink struct {
	client *redis.Client
	limit  int64
	ttl    time.Duration
}

// RedisOpts holds parameters for creating a RedisSink.
type RedisOpts struct {
	Client      *redis.Client
	ReplayLimit int           // defaults to DefaultReplayLimit
	TTL         time.Duration // defaults to DefaultReplayTTL
}

// NewRedisSink creates a RedisSink and checks the connection.
func NewRedisSink(ctx context.Context, opts RedisOpts) (*RedisSink, error) {
	if opts.Client == nil {
		return nil, errors.New("progress: redis client is required")
	}
	if err := opts.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("progress: connect to redis: %w", err)
	}
	limit := opts.ReplayLimit
	if limit <= 0 {
		limit = DefaultReplayLimit
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &RedisSink{client: opts.Client, limit: int64(limit), ttl: ttl}, nil
}

// channel returns the pub/sub channel for a session. Live subscribers see
// every event, chunks included.
func channel(sessionID string) string {
	return channelPrefix + sessionID
}

// Emit assigns the next sequence number, publishes ev and, unless it is a
// chunk, appends it to the replay list.
func (r *RedisSink) Emit(ctx context.Context, ev Event) error {
	seq, err := r.client.Incr(ctx, seqPrefix+ev.SessionID).Result()
	if err != nil {
		return fmt.Errorf("progress: redis seq: %w", err)
	}
	ev.Seq = seq
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("progress: marshal event: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Expire(ctx, seqPrefix+ev.SessionID, r.ttl)
	if ev.Type != Chunk {
		key := replayPrefix + ev.SessionID
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -r.limit, -1)
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.Publish(ctx, channel(ev.SessionID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("progress: redis emit: %w", err)
	}
	return nil
}

// Replay returns the retained events of a session with Seq greater than
// since, oldest first.
func (r *RedisSink) Replay(ctx context.Context, sessionID string, since int64) ([]Event, error) {
	raw, err := r.client.LRange(ctx, replayPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("progress: redis replay: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("progress: decode replay: %w", err)
		}
		if ev.Seq > since {
			events = append(events, ev)
		}
	}
	return events, nil
}
