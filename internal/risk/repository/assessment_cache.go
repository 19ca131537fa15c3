package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Aidin1998/riskcore/internal/risk"
)

// RedisAssessmentCache caches computed risk assessments with a short TTL so
// the gate does not recompute the full metric set on every evaluation.
type RedisAssessmentCache struct {
	client *redis.Client
}

func NewRedisAssessmentCache(client *redis.Client) *RedisAssessmentCache {
	return &RedisAssessmentCache{client: client}
}

func assessmentKey(userID uuid.UUID) string {
	return fmt.Sprintf("risk:assessment:%s", userID)
}

func (c *RedisAssessmentCache) Get(ctx context.Context, userID uuid.UUID) (*risk.RiskAssessment, error) {
	payload, err := c.client.Get(ctx, assessmentKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var assessment risk.RiskAssessment
	if err := json.Unmarshal(payload, &assessment); err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (c *RedisAssessmentCache) Set(ctx context.Context, assessment *risk.RiskAssessment, ttl time.Duration) error {
	payload, err := json.Marshal(assessment)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, assessmentKey(assessment.UserID), payload, ttl).Err()
}
