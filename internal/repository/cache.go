package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/service"
)

const issueCacheTTL = 5 * time.Minute

// RedisIssueCache кеширует отдельные обращения в Redis
type RedisIssueCache struct {
	redisClient *redis.Client
}

func NewRedisIssueCache(client *redis.Client) service.IssueCache {
	return &RedisIssueCache{redisClient: client}
}

func issueKey(id uuid.UUID) string {
	return fmt.Sprintf("issue:%s", id.String())
}

// Get возвращает nil, nil при промахе
func (c *RedisIssueCache) Get(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	val, err := c.redisClient.Get(ctx, issueKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get issue from cache: %w", err)
	}

	issue := &models.Issue{}
	if err := json.Unmarshal(val, issue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issue from cache: %w", err)
	}
	return issue, nil
}

func (c *RedisIssueCache) Set(ctx context.Context, issue *models.Issue) error {
	val, err := json.Marshal(issue)
	if err != nil {
		return fmt.Errorf("failed to marshal issue for cache: %w", err)
	}
	if err := c.redisClient.Set(ctx, issueKey(issue.ID), val, issueCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set issue in cache: %w", err)
	}
	return nil
}

func (c *RedisIssueCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.redisClient.Del(ctx, issueKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate issue cache: %w", err)
	}
	return nil
}
