package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Krimson/strokeguard/internal/risk"
	"github.com/Krimson/strokeguard/internal/scan"
)

// RedisStore implements CacheStore on Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// ===== Keys =====

func sessionKey(sessionID string) string {
	return fmt.Sprintf("scan:%s:metadata", sessionID)
}

func progressKey(sessionID string) string {
	return fmt.Sprintf("scan:%s:progress", sessionID)
}

func outcomeKey(sessionID string) string {
	return fmt.Sprintf("scan:%s:outcome", sessionID)
}

func sessionPattern(sessionID string) string {
	return fmt.Sprintf("scan:%s:*", sessionID)
}

func baselineKey(userID string) string {
	if userID == "" {
		userID = anonymousUser
	}
	return fmt.Sprintf("user:%s:baseline", userID)
}

// ===== Sessions =====

func (r *RedisStore) SetSession(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// KEEPTTL so a status update after completion does not make the key permanent
	return r.client.SetArgs(ctx, sessionKey(s.ID), data, redis.SetArgs{KeepTTL: true}).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	iter := r.client.Scan(ctx, 0, sessionPattern(sessionID), 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	count, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) SetSessionTTL(ctx context.Context, sessionID string, ttl time.Duration) error {
	iter := r.client.Scan(ctx, 0, sessionPattern(sessionID), 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Expire(ctx, iter.Val(), ttl)
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ===== Progress =====

func (r *RedisStore) AppendProgress(ctx context.Context, sessionID string, p scan.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return r.client.RPush(ctx, progressKey(sessionID), data).Err()
}

func (r *RedisStore) GetProgress(ctx context.Context, sessionID string) ([]scan.Progress, error) {
	data, err := r.client.LRange(ctx, progressKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	out := make([]scan.Progress, 0, len(data))
	for _, item := range data {
		var p scan.Progress
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ===== Outcome =====

func (r *RedisStore) SetOutcome(ctx context.Context, sessionID string, o scan.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return r.client.Set(ctx, outcomeKey(sessionID), data, 0).Err()
}

// GetOutcome returns nil without error while the scan is still running.
func (r *RedisStore) GetOutcome(ctx context.Context, sessionID string) (*scan.Outcome, error) {
	data, err := r.client.Get(ctx, outcomeKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	var o scan.Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	return &o, nil
}

// ===== Baseline =====

func (r *RedisStore) SetBaseline(ctx context.Context, userID string, b risk.Baseline) error {
	fields := map[string]interface{}{
		"blood_pressure":  b.BloodPressure,
		"diabetes_status": b.DiabetesStatus,
		"smoking_status":  b.SmokingStatus,
		"family_history":  b.FamilyHistory,
		"activity_level":  b.ActivityLevel,
		"updated_at":      time.Now().Unix(),
	}
	return r.client.HSet(ctx, baselineKey(userID), fields).Err()
}

// GetBaseline returns nil without error when the user never submitted one.
func (r *RedisStore) GetBaseline(ctx context.Context, userID string) (*risk.Baseline, error) {
	result, err := r.client.HGetAll(ctx, baselineKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	return &risk.Baseline{
		BloodPressure:  result["blood_pressure"],
		DiabetesStatus: result["diabetes_status"],
		SmokingStatus:  result["smoking_status"],
		FamilyHistory:  result["family_history"],
		ActivityLevel:  result["activity_level"],
	}, nil
}
