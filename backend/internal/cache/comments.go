package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"annotation-service/backend/internal/anchor"
)

const (
	BaseTTL = 12 * time.Hour   // 批注快照只在会话期间有效
	Jitter  = 30 * time.Minute // 随机抖动范围
)

var ErrCommentNotFound = errors.New("comment not found")

// CommentCache 保存每个文档当前的批注快照
type CommentCache interface {
	Snapshot(ctx context.Context, docID string) (map[string]anchor.Comment, error)
	Get(ctx context.Context, docID, commentID string) (anchor.Comment, error)
	Put(ctx context.Context, docID, commentID string, c anchor.Comment) error
	Delete(ctx context.Context, docID, commentID string) error
	// UpdateRanges 只改写仍然存在的批注的位置，其余字段和其他批注不动
	UpdateRanges(ctx context.Context, docID string, ranges map[string]anchor.Range) error
}

// 获取随机TTL，防止同时过期
func getRandomTTL() time.Duration {
	return BaseTTL + time.Duration(rand.Int63n(int64(Jitter)))
}

type redisComments struct {
	rdb redis.UniversalClient
	sf  singleflight.Group
}

var _ CommentCache = (*redisComments)(nil)

// NewRedisComments 单机和集群客户端都可以传进来
func NewRedisComments(rdb redis.UniversalClient) CommentCache {
	return &redisComments{rdb: rdb}
}

func (r *redisComments) Snapshot(ctx context.Context, docID string) (map[string]anchor.Comment, error) {
	key := commentsKey(docID)
	// 同一文档的并发读合并成一次 HGETALL
	val, err, _ := r.sf.Do(key, func() (interface{}, error) {
		raw, err := r.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		out := make(map[string]anchor.Comment, len(raw))
		for id, s := range raw {
			var c anchor.Comment
			if err := json.Unmarshal([]byte(s), &c); err != nil {
				log.Printf("comments cache: skip malformed comment doc=%s id=%s: %v", docID, id, err)
				continue
			}
			out[id] = c
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	snapshot, ok := val.(map[string]anchor.Comment)
	if !ok {
		return nil, errors.New("internal type error")
	}
	// singleflight 的结果被多个调用方共享，各自拿一份拷贝
	out := make(map[string]anchor.Comment, len(snapshot))
	for id, c := range snapshot {
		out[id] = c
	}
	return out, nil
}

func (r *redisComments) Get(ctx context.Context, docID, commentID string) (anchor.Comment, error) {
	s, err := r.rdb.HGet(ctx, commentsKey(docID), commentID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return anchor.Comment{}, ErrCommentNotFound
		}
		return anchor.Comment{}, err
	}
	var c anchor.Comment
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return anchor.Comment{}, fmt.Errorf("decode comment %s: %w", commentID, err)
	}
	return c, nil
}

func (r *redisComments) Put(ctx context.Context, docID, commentID string, c anchor.Comment) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	key := commentsKey(docID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, commentID, b)
	pipe.Expire(ctx, key, getRandomTTL())
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisComments) Delete(ctx context.Context, docID, commentID string) error {
	n, err := r.rdb.HDel(ctx, commentsKey(docID), commentID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCommentNotFound
	}
	return nil
}

// 回写位置时批注可能已经被 REST 接口删掉或改过，只在字段还在时改 range
var updateRangesScript = redis.NewScript(`
	-- KEYS[1] = commentsKey(docID)
	-- ARGV[1] = ttl (ms)
	-- ARGV[2..] = id, index, length 三个一组
	local updated = 0
	for i = 2, #ARGV, 3 do
		local raw = redis.call("HGET", KEYS[1], ARGV[i])
		if raw then
			local ok, c = pcall(cjson.decode, raw)
			if ok and type(c) == "table" then
				c["range"] = {index = tonumber(ARGV[i + 1]), length = tonumber(ARGV[i + 2])}
				redis.call("HSET", KEYS[1], ARGV[i], cjson.encode(c))
				updated = updated + 1
			end
		end
	end
	if updated > 0 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return updated
`)

func (r *redisComments) UpdateRanges(ctx context.Context, docID string, ranges map[string]anchor.Range) error {
	if len(ranges) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 1+3*len(ranges))
	args = append(args, getRandomTTL().Milliseconds())
	for id, rg := range ranges {
		args = append(args, id, rg.Index, rg.Length)
	}
	err := updateRangesScript.Run(ctx, r.rdb, []string{commentsKey(docID)}, args...).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
