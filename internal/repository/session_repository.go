package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionRepository 接口定义了解析过程中的轻量会话状态操作（Redis）。
type SessionRepository interface {
	// AcquireResolutionLock 为会话获取一轮解析的互斥锁。
	// 同一会话的请求预期是顺序的，这里只防御偶发的并发竞争。
	AcquireResolutionLock(ctx context.Context, threadID uint, ttl time.Duration) (bool, error)
	ReleaseResolutionLock(ctx context.Context, threadID uint) error
	// PushRecentQuery 记录一条原始查询，保留最近 3 条。
	PushRecentQuery(ctx context.Context, threadID uint, query string) error
	GetRecentQueries(ctx context.Context, threadID uint) ([]string, error)
}

// redisSessionRepository 是 SessionRepository 接口的 Redis 实现。
type redisSessionRepository struct {
	redisClient *redis.Client
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient}
}

func (r *redisSessionRepository) lockKey(threadID uint) string {
	return fmt.Sprintf("resolve:lock:%d", threadID)
}

func (r *redisSessionRepository) queriesKey(threadID uint) string {
	return fmt.Sprintf("resolve:queries:%d", threadID)
}

// AcquireResolutionLock 使用 SETNX + TTL 获取互斥锁，TTL 兜底防止请求中断后锁悬挂。
func (r *redisSessionRepository) AcquireResolutionLock(ctx context.Context, threadID uint, ttl time.Duration) (bool, error) {
	ok, err := r.redisClient.SetNX(ctx, r.lockKey(threadID), time.Now().UnixNano(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire resolution lock: %w", err)
	}
	return ok, nil
}

// ReleaseResolutionLock 释放会话的解析锁。
func (r *redisSessionRepository) ReleaseResolutionLock(ctx context.Context, threadID uint) error {
	return r.redisClient.Del(ctx, r.lockKey(threadID)).Err()
}

// PushRecentQuery 将查询压入列表头部并裁剪到最近 3 条。
func (r *redisSessionRepository) PushRecentQuery(ctx context.Context, threadID uint, query string) error {
	key := r.queriesKey(threadID)
	pipe := r.redisClient.Pipeline()
	pipe.LPush(ctx, key, query)
	pipe.LTrim(ctx, key, 0, 2)
	pipe.Expire(ctx, key, 7*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push recent query: %w", err)
	}
	return nil
}

// GetRecentQueries 返回最近的原始查询（最新在前）。
func (r *redisSessionRepository) GetRecentQueries(ctx context.Context, threadID uint) ([]string, error) {
	queries, err := r.redisClient.LRange(ctx, r.queriesKey(threadID), 0, 2).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent queries: %w", err)
	}
	return queries, nil
}
