package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/models"
)

const (
	// ChangesChannel carries a JSON incidents.Change for every committed
	// mutation.
	ChangesChannel = "incident-updates"

	publicListKey = "incidents:public"
	publicGenKey  = "incidents:public:gen"
)

// setIfGeneration writes the list (KEYS[2]) only while the generation
// counter (KEYS[1]) still equals ARGV[1]. ARGV[3] is a TTL in milliseconds,
// 0 for none.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or '0'
if cur ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// RedisStore caches the public incident list and publishes change
// notifications.
type RedisStore struct {
	Client  *redis.Client
	ListTTL time.Duration
}

var (
	_ incidents.ListCache      = (*RedisStore)(nil)
	_ incidents.ChangeNotifier = (*RedisStore)(nil)
)

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string, listTTL time.Duration) (*RedisStore, error) {
	rs := &RedisStore{
		Client:  redis.NewClient(&redis.Options{Addr: addr}),
		ListTTL: listTTL,
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// GetPublicList returns the cached verified list. The bool is false on a
// cache miss.
func (r *RedisStore) GetPublicList(ctx context.Context) ([]models.Incident, bool, error) {
	raw, err := r.Client.Get(ctx, publicListKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get public list: %w", err)
	}
	var list []models.Incident
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, fmt.Errorf("decode public list: %w", err)
	}
	return list, true, nil
}

// PublicListGeneration returns the invalidation counter, 0 before the first
// invalidation.
func (r *RedisStore) PublicListGeneration(ctx context.Context) (int64, error) {
	gen, err := r.Client.Get(ctx, publicGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get public list generation: %w", err)
	}
	return gen, nil
}

// SetPublicList caches list for ListTTL unless the list was invalidated
// after gen was read.
func (r *RedisStore) SetPublicList(ctx context.Context, gen int64, list []models.Incident) (bool, error) {
	payload, err := json.Marshal(list)
	if err != nil {
		return false, fmt.Errorf("encode public list: %w", err)
	}
	stored, err := setIfGeneration.Run(ctx, r.Client,
		[]string{publicGenKey, publicListKey},
		strconv.FormatInt(gen, 10), payload, r.ListTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("set public list: %w", err)
	}
	return stored == 1, nil
}

// InvalidatePublicList bumps the generation and drops the cached list in one
// transaction.
func (r *RedisStore) InvalidatePublicList(ctx context.Context) error {
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, publicGenKey)
		pipe.Del(ctx, publicListKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate public list: %w", err)
	}
	return nil
}

// PublishChange notifies other instances about a mutation.
func (r *RedisStore) PublishChange(ctx context.Context, c incidents.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := r.Client.Publish(ctx, ChangesChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// SubscribeChanges calls fn for every change published by any instance until
// ctx is cancelled. Malformed messages are logged and skipped.
func (r *RedisStore) SubscribeChanges(ctx context.Context, logger *zap.Logger, fn func(incidents.Change)) error {
	sub := r.Client.Subscribe(ctx, ChangesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", ChangesChannel, err)
	}
	go func() {
		defer func() {
			_ = sub.Close()
		}()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c incidents.Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					logger.Warn("malformed incident change", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				fn(c)
			}
		}
	}()
	return nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
