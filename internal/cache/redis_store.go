package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"documind/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "documind:cache:"

// RedisStore shares cache entries between processes. The claim is a
// SET NX of an in-progress entry with the claim TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// renewScript extends the entry TTL only while it is still the caller's
// in-progress claim.
var renewScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return 0
end
local ok, entry = pcall(cjson.decode, raw)
if not ok or entry.state ~= ARGV[1] or entry.owner ~= ARGV[2] then
	return 0
end
return redis.call("PEXPIRE", KEYS[1], ARGV[3])
`)

func entryKey(fp string) string   { return keyPrefix + fp }
func failureKey(fp string) string { return keyPrefix + fp + ":err" }

func (r *RedisStore) Get(ctx context.Context, fp string) (*models.CacheEntry, error) {
	data, err := r.client.Get(ctx, entryKey(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCacheCorruption, err)
	}
	if entry.State != models.CacheInProgress && entry.State != models.CacheComplete {
		return nil, fmt.Errorf("%w: unknown state %q", models.ErrCacheCorruption, entry.State)
	}
	return &entry, nil
}

func (r *RedisStore) Claim(ctx context.Context, fp, owner string, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(models.CacheEntry{
		Fingerprint: fp,
		State:       models.CacheInProgress,
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	return r.client.SetNX(ctx, entryKey(fp), data, ttl).Result()
}

func (r *RedisStore) Renew(ctx context.Context, fp, owner string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, r.client, []string{entryKey(fp)},
		string(models.CacheInProgress), owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) Publish(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, entryKey(entry.Fingerprint), data, ttl)
	pipe.Del(ctx, failureKey(entry.Fingerprint))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Fail(ctx context.Context, fp, reason string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, entryKey(fp))
	pipe.Set(ctx, failureKey(fp), reason, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Failure(ctx context.Context, fp string) (string, bool, error) {
	reason, err := r.client.Get(ctx, failureKey(fp)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return reason, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, fp string) error {
	return r.client.Del(ctx, entryKey(fp)).Err()
}
