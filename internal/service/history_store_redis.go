package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"messenger-llm/internal/domain"
)

const redisHistoryAppendScript = `
local cap = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
for i = 3, #ARGV do
  redis.call("RPUSH", KEYS[1], ARGV[i])
end
redis.call("LTRIM", KEYS[1], -cap, -1)
if ttl > 0 then
  redis.call("EXPIRE", KEYS[1], ttl)
end
return redis.call("LLEN", KEYS[1])
`

type redisHistoryClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

type redisHistoryStore struct {
	client   redisHistoryClient
	maxTurns int
	ttl      time.Duration
	prefix   string
	timeout  time.Duration
}

// NewRedisHistoryStore guarda cada sesión como una lista de Redis con TTL por inactividad.
func NewRedisHistoryStore(client *redis.Client, maxTurns int, ttl time.Duration) HistoryStore {
	if client == nil {
		return nil
	}
	return newRedisHistoryStore(client, maxTurns, ttl)
}

func newRedisHistoryStore(client redisHistoryClient, maxTurns int, ttl time.Duration) *redisHistoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryMaxTurns
	}
	return &redisHistoryStore{
		client:   client,
		maxTurns: maxTurns,
		ttl:      ttl,
		prefix:   "history:",
		timeout:  500 * time.Millisecond,
	}
}

func (s *redisHistoryStore) Read(ctx context.Context, userID string) ([]domain.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrHistoryInvalidInput
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.LRange(ctx, s.prefix+userID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange history: %w", err)
	}

	turns := make([]domain.Turn, 0, len(raw))
	for _, item := range raw {
		var t domain.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *redisHistoryStore) Append(ctx context.Context, userID string, turns ...domain.Turn) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrHistoryInvalidInput
	}
	if len(turns) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(turns)+2)
	args = append(args, s.maxTurns, int(s.ttl.Seconds()))
	for _, t := range turns {
		if !t.Role.Valid() {
			return ErrHistoryInvalidInput
		}
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		args = append(args, string(b))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Eval(ctx, redisHistoryAppendScript, []string{s.prefix + userID}, args...).Err(); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
