package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis is the multi-process Registry. Keys carry a 24h TTL so an abandoned
// room eventually disappears on its own.
type Redis struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to session registry")
	return &Redis{client: client}, nil
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func lockKey(room string) string    { return "session:lock:" + room }
func cursorKey(room string) string  { return "session:cursor:" + room }
func verdictKey(room string) string { return "session:verdict:" + room }
func elapsedKey(room string) string { return "session:elapsed:" + room }

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock TTL only for the current owner.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (r *Redis) AcquireLock(ctx context.Context, room, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(room), owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	cur, err := r.client.Get(ctx, lockKey(room)).Result()
	if err == redis.Nil {
		return r.client.SetNX(ctx, lockKey(room), owner, ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if cur == owner {
		return r.RenewLock(ctx, room, owner, ttl)
	}
	return false, nil
}

func (r *Redis) RenewLock(ctx context.Context, room, owner string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, r.client, []string{lockKey(room)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) ReleaseLock(ctx context.Context, room, owner string) error {
	return releaseScript.Run(ctx, r.client, []string{lockKey(room)}, owner).Err()
}

func (r *Redis) LastDeductedMinute(ctx context.Context, room string) (int, error) {
	val, err := r.client.Get(ctx, cursorKey(room)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func (r *Redis) SetLastDeductedMinute(ctx context.Context, room string, minute int) error {
	return r.client.Set(ctx, cursorKey(room), minute, ElapsedStaleAfter).Err()
}

func (r *Redis) MarkVerdict(ctx context.Context, room string) (bool, error) {
	return r.client.SetNX(ctx, verdictKey(room), "1", ElapsedStaleAfter).Result()
}

func (r *Redis) LoadElapsed(ctx context.Context, room string) (int, bool, error) {
	val, err := r.client.Get(ctx, elapsedKey(room)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	seconds, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return seconds, true, nil
}

func (r *Redis) SaveElapsed(ctx context.Context, room string, seconds int) error {
	return r.client.Set(ctx, elapsedKey(room), seconds, ElapsedStaleAfter).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
