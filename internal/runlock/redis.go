package runlock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis key holding the queue run lock.
const DefaultKey = "jobmatch:queue:run"

// MinTTL is the shortest lock TTL NewRedis accepts.
const MinTTL = time.Second

var _ Guard = (*Redis)(nil)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript extends the TTL only if the key still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a cross-process guard: SET NX PX with a random token, refreshed
// while held and released only by its owner.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis returns a guard on key. The lock expires after ttl if the holder
// dies without releasing it.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration, logger *slog.Logger) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	return &Redis{client: client, key: key, ttl: ttl, logger: logger}
}

// TryAcquire sets the lock key if absent. While held, the TTL is refreshed
// every ttl/3 until the release func is called.
func (r *Redis) TryAcquire(ctx context.Context) (Release, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire redis lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(token, stop, done)

	return once(func() {
		close(stop)
		<-done

		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.client, []string{r.key}, token).Err(); err != nil {
			r.logger.Error("releasing redis lock", "key", r.key, "error", err)
		}
	}), true, nil
}

func (r *Redis) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := refreshScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.logger.Warn("refreshing redis lock", "key", r.key, "error", err)
				continue
			}
			if n == 0 {
				r.logger.Warn("redis lock lost before release", "key", r.key)
				return
			}
		}
	}
}
