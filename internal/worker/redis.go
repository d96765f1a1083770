package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"audiodigest/internal/models"
	"audiodigest/internal/redis"
)

const (
	redisCancelChannel  = "audiodigest:cancel"
	redisProgressPrefix = "audiodigest:progress:"
	redisProgressTTL    = 30 * time.Minute
)

type cancelMessage struct {
	Token string `json:"token"`
}

// progressRedis shares progress snapshots and cancel requests between
// instances. All methods are no-ops without a client.
type progressRedis struct {
	client *redis.Client
}

func newProgressCache(client *redis.Client) *progressRedis {
	return &progressRedis{client: client}
}

func (r *progressRedis) enabled() bool {
	return r != nil && r.client != nil && r.client.Raw() != nil
}

// startListener runs handler for every cancel message until ctx ends.
func (r *progressRedis) startListener(ctx context.Context, handler func(cancelMessage)) {
	if !r.enabled() || handler == nil {
		return
	}
	pubsub, err := r.client.Subscribe(ctx, redisCancelChannel)
	if err != nil {
		slog.Error("cancel listener subscribe failed", "error", err)
		return
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var cm cancelMessage
				if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
					slog.Warn("cancel message decode failed", "error", err)
					continue
				}
				handler(cm)
			}
		}
	}()
}

func (r *progressRedis) publishCancel(token string) bool {
	if !r.enabled() {
		return false
	}
	payload, err := json.Marshal(cancelMessage{Token: token})
	if err != nil {
		slog.Warn("cancel message marshal failed", "error", err)
		return false
	}
	if err := r.client.Publish(context.Background(), redisCancelChannel, payload); err != nil {
		slog.Warn("publish cancel failed", "token", token, "error", err)
		return false
	}
	return true
}

func (r *progressRedis) storeProgress(token string, ev models.ProgressEvent) {
	if !r.enabled() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("progress marshal failed", "token", token, "error", err)
		return
	}
	if err := r.client.Set(context.Background(), redisProgressPrefix+token, data, redisProgressTTL); err != nil {
		slog.Warn("progress cache write failed", "token", token, "error", err)
	}
}

func (r *progressRedis) loadProgress(ctx context.Context, token string) (*models.ProgressEvent, bool) {
	if !r.enabled() {
		return nil, false
	}
	raw, err := r.client.Get(ctx, redisProgressPrefix+token)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			slog.Warn("progress cache read failed", "token", token, "error", err)
		}
		return nil, false
	}
	var ev models.ProgressEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		slog.Warn("progress cache decode failed", "token", token, "error", err)
		return nil, false
	}
	return &ev, true
}
