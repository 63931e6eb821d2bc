package shuffle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/model"
)

// Store caches a session's question ordering for the life of an attempt.
type Store interface {
	Get(ctx context.Context, examID string, studentID int) ([]model.Question, bool, error)
	Put(ctx context.Context, examID string, studentID int, questions []model.Question) error
	Delete(ctx context.Context, examID string, studentID int) error
}

// RedisStore persists orderings to Redis with a TTL generous enough to
// outlive any exam duration.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: 24 * time.Hour}
}

func (s *RedisStore) Get(ctx context.Context, examID string, studentID int) ([]model.Question, bool, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ShuffledQuestionsKey(examID, studentID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var questions []model.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil, false, fmt.Errorf("decode cached ordering: %w", err)
	}
	return questions, true, nil
}

func (s *RedisStore) Put(ctx context.Context, examID string, studentID int, questions []model.Question) error {
	raw, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("encode ordering: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ShuffledQuestionsKey(examID, studentID), raw, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, examID string, studentID int) error {
	return s.rdb.Del(ctx, config.CacheKey.ShuffledQuestionsKey(examID, studentID)).Err()
}

// MemoryStore is an in-process Store used in tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]model.Question
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]model.Question)}
}

func (s *MemoryStore) key(examID string, studentID int) string {
	return config.CacheKey.ShuffledQuestionsKey(examID, studentID)
}

func (s *MemoryStore) Get(_ context.Context, examID string, studentID int) ([]model.Question, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs, ok := s.data[s.key(examID, studentID)]
	return qs, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, examID string, studentID int, questions []model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.key(examID, studentID)] = questions
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, examID string, studentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, s.key(examID, studentID))
	return nil
}
