package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"otserver/internal/collab"
)

// 具体实现：基于 redis 的 SnapshotCache。
// 引擎在每次提交后刷新缓存；读路径未命中则回源存储。
type redisSnapshot struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSnapshot(rdb *redis.Client, ttl time.Duration) collab.SnapshotCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisSnapshot{rdb: rdb, ttl: ttl}
}

func (c *redisSnapshot) SetSnapshot(ctx context.Context, docID string, content string, version uint64) error {
	// 并发提交的刷新可能乱序到达；用脚本保证只前进不倒退
	luaScript := `
	local cur = redis.call('GET', KEYS[2])
	if cur and tonumber(cur) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
	redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[3])
	return 1
	`
	script := redis.NewScript(luaScript)
	ttlSec := int64(c.ttl / time.Second)
	_, err := script.Run(ctx, c.rdb,
		[]string{snapContentKey(docID), snapVersionKey(docID)},
		content, version, ttlSec,
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (c *redisSnapshot) GetSnapshot(ctx context.Context, docID string) (string, uint64, bool, error) {
	vals, err := c.rdb.MGet(ctx, snapContentKey(docID), snapVersionKey(docID)).Result()
	if err != nil {
		return "", 0, false, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return "", 0, false, nil
	}
	content, ok := vals[0].(string)
	if !ok {
		return "", 0, false, nil
	}
	verStr, ok := vals[1].(string)
	if !ok {
		return "", 0, false, nil
	}
	version, err := strconv.ParseUint(verStr, 10, 64)
	if err != nil {
		return "", 0, false, nil
	}
	return content, version, true, nil
}
