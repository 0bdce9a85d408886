package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/data/pgxutil"
	"github.com/target/policy-analysis-api/internal/domain/model"
	apperrors "github.com/target/policy-analysis-api/internal/errors"
)

// AnalysisRepo mirrors job status and results into Postgres.
type AnalysisRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.PersistenceBackend = (*AnalysisRepo)(nil)

// NewAnalysisRepo creates a new AnalysisRepo.
func NewAnalysisRepo(db *sql.DB) *AnalysisRepo {
	return &AnalysisRepo{DB: db, timeProvider: SystemTime{}}
}

// NewAnalysisRepoWithTimeProvider creates a new AnalysisRepo with a custom time provider.
func NewAnalysisRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *AnalysisRepo {
	return &AnalysisRepo{DB: db, timeProvider: tp}
}

// StoredStatus is the persisted status row of one analysis.
type StoredStatus struct {
	AnalysisID   string     `db:"analysis_id"`
	PolicyID     *string    `db:"policy_id"`
	Status       string     `db:"status"`
	Progress     string     `db:"progress"`
	Attempts     int        `db:"attempts"`
	ErrorMessage *string    `db:"error_message"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

// UpsertStatus writes the latest status of a job. A write older than the stored
// row is ignored so a late mirror never moves a job backwards.
func (r *AnalysisRepo) UpsertStatus(ctx context.Context, jobID string, fields model.StatusFields) error {
	if jobID == "" {
		return ErrAnalysisIDRequired
	}
	if !fields.Status.Valid() {
		return apperrors.Validation(fmt.Sprintf("invalid status %q", fields.Status))
	}
	updatedAt := fields.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.timeProvider.Now()
	}

	const query = `
		INSERT INTO analysis_jobs (analysis_id, policy_id, status, progress, attempts, error_message, updated_at, completed_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (analysis_id) DO UPDATE SET
			policy_id     = COALESCE(EXCLUDED.policy_id, analysis_jobs.policy_id),
			status        = EXCLUDED.status,
			progress      = EXCLUDED.progress,
			attempts      = GREATEST(EXCLUDED.attempts, analysis_jobs.attempts),
			error_message = EXCLUDED.error_message,
			updated_at    = EXCLUDED.updated_at,
			completed_at  = COALESCE(EXCLUDED.completed_at, analysis_jobs.completed_at)
		WHERE analysis_jobs.updated_at <= EXCLUDED.updated_at
		  AND analysis_jobs.status NOT IN ('completed', 'failed')`

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, query,
			jobID, fields.PolicyID, string(fields.Status), fields.Progress, fields.Attempts,
			fields.Error, dbTimestamp(updatedAt), completedAtArg(fields.CompletedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert analysis status %s: %w", jobID, apperrors.MapDBError(err))
	}
	return nil
}

func completedAtArg(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := dbTimestamp(*t)
	return &v
}

// UpsertResult writes the final result of a completed job.
func (r *AnalysisRepo) UpsertResult(ctx context.Context, jobID string, result *model.AnalysisResult) error {
	if jobID == "" {
		return ErrAnalysisIDRequired
	}
	if result == nil {
		return ErrResultRequired
	}

	var data []byte
	if result.AnalysisData != nil {
		var err error
		if data, err = json.Marshal(result.AnalysisData); err != nil {
			return fmt.Errorf("marshal analysis data: %w", err)
		}
	}
	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = r.timeProvider.Now()
	}

	const query = `
		INSERT INTO analysis_results (
			analysis_id, policy_id, client_id, client_name, overall_score, recommendation,
			report_path, report_storage_path, analysis_data, tokens_used,
			processing_time_seconds, completed_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (analysis_id) DO UPDATE SET
			policy_id               = EXCLUDED.policy_id,
			client_id               = EXCLUDED.client_id,
			client_name             = EXCLUDED.client_name,
			overall_score           = EXCLUDED.overall_score,
			recommendation          = EXCLUDED.recommendation,
			report_path             = EXCLUDED.report_path,
			report_storage_path     = EXCLUDED.report_storage_path,
			analysis_data           = EXCLUDED.analysis_data,
			tokens_used             = EXCLUDED.tokens_used,
			processing_time_seconds = EXCLUDED.processing_time_seconds,
			completed_at            = EXCLUDED.completed_at,
			updated_at              = EXCLUDED.updated_at`

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, query,
			jobID, result.PolicyID, result.ClientID, result.ClientName, result.OverallScore,
			result.Recommendation, result.ReportPath, result.ReportStoragePath, data,
			result.TokensUsed, result.ProcessingTimeSeconds, dbTimestamp(completedAt), dbTimestamp(r.timeProvider.Now()))
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert analysis result %s: %w", jobID, apperrors.MapDBError(err))
	}
	return nil
}

// GetStatus returns the persisted status row for jobID.
func (r *AnalysisRepo) GetStatus(ctx context.Context, jobID string) (*StoredStatus, error) {
	const query = `
		SELECT analysis_id, policy_id, status, progress, attempts, error_message,
		       updated_at, completed_at, created_at
		FROM analysis_jobs
		WHERE analysis_id = $1`

	var out StoredStatus
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, jobID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[StoredStatus])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("get analysis status %s: %w", jobID, apperrors.MapDBError(err))
	}
	return &out, nil
}

// GetResult returns the persisted result for jobID.
func (r *AnalysisRepo) GetResult(ctx context.Context, jobID string) (*model.AnalysisResult, error) {
	const query = `
		SELECT analysis_id, COALESCE(policy_id, ''), COALESCE(client_id, ''), client_name,
		       overall_score, recommendation, report_path, report_storage_path, analysis_data,
		       tokens_used, processing_time_seconds, completed_at
		FROM analysis_results
		WHERE analysis_id = $1`

	var (
		res  model.AnalysisResult
		data []byte
	)
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, query, jobID).Scan(
			&res.AnalysisID, &res.PolicyID, &res.ClientID, &res.ClientName,
			&res.OverallScore, &res.Recommendation, &res.ReportPath, &res.ReportStoragePath, &data,
			&res.TokensUsed, &res.ProcessingTimeSeconds, &res.CompletedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("get analysis result %s: %w", jobID, apperrors.MapDBError(err))
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &res.AnalysisData); err != nil {
			return nil, fmt.Errorf("decode analysis data: %w", err)
		}
	}
	res.Status = model.JobStatusCompleted
	return &res, nil
}

// Health pings the database.
func (r *AnalysisRepo) Health(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}
