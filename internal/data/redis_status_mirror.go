package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/model"
)

const (
	statusKeyPrefix        = "analysis:status:"
	resultKeyPrefix        = "analysis:result:"
	defaultStatusMirrorTTL = 7 * 24 * time.Hour
)

// RedisStatusMirror mirrors job status into one Redis hash per job and the
// final result into a JSON string, both expiring after TTL.
type RedisStatusMirror struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ core.PersistenceBackend = (*RedisStatusMirror)(nil)

// NewRedisStatusMirror creates a new RedisStatusMirror.
func NewRedisStatusMirror(client redis.UniversalClient, ttl time.Duration) *RedisStatusMirror {
	if ttl <= 0 {
		ttl = defaultStatusMirrorTTL
	}
	return &RedisStatusMirror{client: client, ttl: ttl}
}

// UpsertStatus writes fields into the job's hash and refreshes its TTL.
func (m *RedisStatusMirror) UpsertStatus(ctx context.Context, jobID string, fields model.StatusFields) error {
	if jobID == "" {
		return ErrAnalysisIDRequired
	}
	values := map[string]any{
		"analysis_id": jobID,
		"status":      string(fields.Status),
		"progress":    fields.Progress,
		"attempts":    fields.Attempts,
		"updated_at":  fields.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if fields.PolicyID != "" {
		values["policy_id"] = fields.PolicyID
	}
	if fields.Error != "" {
		values["error"] = fields.Error
	}
	if fields.CompletedAt != nil {
		values["completed_at"] = fields.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	key := statusKeyPrefix + jobID
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mirror status %s: %w", jobID, err)
	}
	return nil
}

// UpsertResult stores the result as JSON.
func (m *RedisStatusMirror) UpsertResult(ctx context.Context, jobID string, result *model.AnalysisResult) error {
	if jobID == "" {
		return ErrAnalysisIDRequired
	}
	if result == nil {
		return ErrResultRequired
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := m.client.Set(ctx, resultKeyPrefix+jobID, b, m.ttl).Err(); err != nil {
		return fmt.Errorf("redis mirror result %s: %w", jobID, err)
	}
	return nil
}

// GetStatus reads the mirrored status of jobID.
func (m *RedisStatusMirror) GetStatus(ctx context.Context, jobID string) (*model.StatusFields, error) {
	raw, err := m.client.HGetAll(ctx, statusKeyPrefix+jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrAnalysisNotFound
	}

	out := &model.StatusFields{
		AnalysisID: raw["analysis_id"],
		PolicyID:   raw["policy_id"],
		Status:     model.JobStatus(raw["status"]),
		Progress:   raw["progress"],
		Error:      raw["error"],
	}
	if v, ok := raw["attempts"]; ok {
		if out.Attempts, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	if out.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	if v, ok := raw["completed_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode completed_at: %w", err)
		}
		out.CompletedAt = &t
	}
	return out, nil
}

// GetResult reads the mirrored result of jobID.
func (m *RedisStatusMirror) GetResult(ctx context.Context, jobID string) (*model.AnalysisResult, error) {
	b, err := m.client.Get(ctx, resultKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var res model.AnalysisResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}
