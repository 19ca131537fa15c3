package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Aidin1998/riskcore/internal/risk"
)

// RedisHaltStore stores kill-switch halt flags in Redis. SETNX gives the
// atomic read-modify-write the flag needs: racing activations keep the
// earliest reason, and the flag is visible to every gate instance the moment
// the write returns.
type RedisHaltStore struct {
	client *redis.Client
}

func NewRedisHaltStore(client *redis.Client) *RedisHaltStore {
	return &RedisHaltStore{client: client}
}

func userHaltKey(userID uuid.UUID) string {
	return fmt.Sprintf("risk:halt:user:%s", userID)
}

func botHaltKey(userID, botID uuid.UUID) string {
	return fmt.Sprintf("risk:halt:bot:%s:%s", userID, botID)
}

func (s *RedisHaltStore) activate(ctx context.Context, key string, state risk.HaltState) (bool, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return false, err
	}
	// No TTL: a halt stays until explicitly deactivated.
	return s.client.SetNX(ctx, key, payload, 0).Result()
}

func (s *RedisHaltStore) get(ctx context.Context, key string) (*risk.HaltState, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state risk.HaltState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RedisHaltStore) ActivateUser(ctx context.Context, userID uuid.UUID, state risk.HaltState) (bool, error) {
	return s.activate(ctx, userHaltKey(userID), state)
}

func (s *RedisHaltStore) ActivateBot(ctx context.Context, userID, botID uuid.UUID, state risk.HaltState) (bool, error) {
	return s.activate(ctx, botHaltKey(userID, botID), state)
}

func (s *RedisHaltStore) UserHalt(ctx context.Context, userID uuid.UUID) (*risk.HaltState, error) {
	return s.get(ctx, userHaltKey(userID))
}

func (s *RedisHaltStore) BotHalt(ctx context.Context, userID, botID uuid.UUID) (*risk.HaltState, error) {
	return s.get(ctx, botHaltKey(userID, botID))
}

func (s *RedisHaltStore) DeactivateUser(ctx context.Context, userID uuid.UUID) error {
	return s.client.Del(ctx, userHaltKey(userID)).Err()
}

func (s *RedisHaltStore) DeactivateBot(ctx context.Context, userID, botID uuid.UUID) error {
	return s.client.Del(ctx, botHaltKey(userID, botID)).Err()
}

// MemoryHaltStore is a process-local halt store used in tests and
// single-instance deployments without Redis.
type MemoryHaltStore struct {
	mu    sync.Mutex
	halts map[string]risk.HaltState
}

func NewMemoryHaltStore() *MemoryHaltStore {
	return &MemoryHaltStore{halts: make(map[string]risk.HaltState)}
}

func (s *MemoryHaltStore) activate(key string, state risk.HaltState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.halts[key]; exists {
		return false
	}
	s.halts[key] = state
	return true
}

func (s *MemoryHaltStore) get(key string) *risk.HaltState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.halts[key]; ok {
		return &state
	}
	return nil
}

func (s *MemoryHaltStore) ActivateUser(_ context.Context, userID uuid.UUID, state risk.HaltState) (bool, error) {
	return s.activate(userHaltKey(userID), state), nil
}

func (s *MemoryHaltStore) ActivateBot(_ context.Context, userID, botID uuid.UUID, state risk.HaltState) (bool, error) {
	return s.activate(botHaltKey(userID, botID), state), nil
}

func (s *MemoryHaltStore) UserHalt(_ context.Context, userID uuid.UUID) (*risk.HaltState, error) {
	return s.get(userHaltKey(userID)), nil
}

func (s *MemoryHaltStore) BotHalt(_ context.Context, userID, botID uuid.UUID) (*risk.HaltState, error) {
	return s.get(botHaltKey(userID, botID)), nil
}

func (s *MemoryHaltStore) DeactivateUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.halts, userHaltKey(userID))
	return nil
}

func (s *MemoryHaltStore) DeactivateBot(_ context.Context, userID, botID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.halts, botHaltKey(userID, botID))
	return nil
}
