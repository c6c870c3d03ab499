package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Registry = (*RedisRegistry)(nil)

// KEYS[1] new session key, KEYS[2] subject key.
// ARGV[1] record, ARGV[2] token value, ARGV[3] ttl ms, ARGV[4] session key prefix.
var replaceLua = redis.NewScript(`
local superseded = 0
local old = redis.call("GET", KEYS[2])
if old then
  superseded = redis.call("DEL", ARGV[4] .. old)
  redis.call("DEL", KEYS[2])
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
  redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
end
return superseded
`)

// Same layout as replaceLua plus ARGV[5], the presented token value.
var rotateLua = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if current ~= ARGV[5] or redis.call("EXISTS", ARGV[4] .. current) == 0 then
  return 0
end
redis.call("DEL", ARGV[4] .. current)
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
  redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
else
  redis.call("DEL", KEYS[2])
end
return 1
`)

var deleteValueLua = redis.NewScript(`
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return 1
`)

var deleteSubjectLua = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
redis.call("DEL", KEYS[1])
return redis.call("DEL", ARGV[1] .. current)
`)

// RedisRegistry stores each record under its token value and keeps a
// subject -> token value index. Keys expire with the record, so Sweep is a no-op.
type RedisRegistry struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRegistry(rdb redis.UniversalClient, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "rs"
	}
	return &RedisRegistry{rdb: rdb, prefix: prefix}
}

func (r *RedisRegistry) sessionPrefix() string {
	return r.prefix + ":session:"
}

func (r *RedisRegistry) sessionKey(value string) string {
	return r.sessionPrefix() + value
}

func (r *RedisRegistry) subjectKey(subjectID string) string {
	return r.prefix + ":subject:" + subjectID
}

func (r *RedisRegistry) Replace(ctx context.Context, rec Record) (int, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}

	n, err := replaceLua.Run(ctx, r.rdb,
		[]string{r.sessionKey(rec.TokenValue), r.subjectKey(rec.SubjectID)},
		data, rec.TokenValue, ttlMillis(rec), r.sessionPrefix(),
	).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *RedisRegistry) Rotate(ctx context.Context, presented string, next Record) error {
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	ok, err := rotateLua.Run(ctx, r.rdb,
		[]string{r.sessionKey(next.TokenValue), r.subjectKey(next.SubjectID)},
		data, next.TokenValue, ttlMillis(next), r.sessionPrefix(), presented,
	).Int()
	if err != nil {
		return unavailable(err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRegistry) FindByValue(ctx context.Context, value string, now time.Time) (Record, error) {
	rec, err := r.get(ctx, value)
	if err != nil {
		return Record{}, err
	}
	if !rec.liveAt(now) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *RedisRegistry) DeleteByValue(ctx context.Context, value string) error {
	rec, err := r.get(ctx, value)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = deleteValueLua.Run(ctx, r.rdb,
		[]string{r.sessionKey(value), r.subjectKey(rec.SubjectID)}, value,
	).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisRegistry) DeleteBySubject(ctx context.Context, subjectID string) (int, error) {
	n, err := deleteSubjectLua.Run(ctx, r.rdb,
		[]string{r.subjectKey(subjectID)}, r.sessionPrefix(),
	).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *RedisRegistry) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *RedisRegistry) get(ctx context.Context, value string) (Record, error) {
	data, err := r.rdb.Get(ctx, r.sessionKey(value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, unavailable(err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, unavailable(err)
	}
	return rec, nil
}

func ttlMillis(rec Record) int64 {
	return rec.ExpiresAt.Sub(rec.CreatedAt).Milliseconds()
}
