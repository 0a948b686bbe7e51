package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisKeyPrefix = "examclock:snapshot:"
	redisIndexKey  = "examclock:snapshot:exams"
)

// RedisStore keeps one hash per exam, student id -> JSON record, and a set
// indexing the exams that have a snapshot.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis snapshot store. Exam hashes expire after
// ttl unless saved again.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func examKey(examID uuid.UUID) string {
	return redisKeyPrefix + examID.String()
}

func (s *RedisStore) Save(ctx context.Context, examID uuid.UUID, records []timer.SessionRecord) error {
	if len(records) == 0 {
		return s.Delete(ctx, examID)
	}

	fields := make(map[string]any, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal snapshot record: %w", err)
		}
		fields[rec.StudentID.String()] = data
	}

	key := examKey(examID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.SAdd(ctx, redisIndexKey, examID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadAll(ctx context.Context) ([]timer.SessionRecord, error) {
	examIDs, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list snapshot exams: %w", err)
	}

	var records []timer.SessionRecord
	for _, id := range examIDs {
		examID, err := uuid.Parse(id)
		if err != nil {
			log.Warn().Str("exam_id", id).Msg("skipping malformed snapshot index entry")
			continue
		}
		fields, err := s.client.HGetAll(ctx, examKey(examID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("load snapshot %s: %w", examID, err)
		}
		if len(fields) == 0 {
			// hash expired, drop the stale index entry
			s.client.SRem(ctx, redisIndexKey, id)
			continue
		}
		for student, raw := range fields {
			var rec timer.SessionRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				log.Warn().
					Err(err).
					Str("exam_id", id).
					Str("student_id", student).
					Msg("skipping undecodable snapshot record")
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, examID uuid.UUID) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, examKey(examID))
		pipe.SRem(ctx, redisIndexKey, examID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
