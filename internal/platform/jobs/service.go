package jobs

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	JobPayrollCalculation = "payroll_calculation"
	JobPayslipDispatch    = "payslip_dispatch"
)

const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

type Runner interface {
	RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error)
}

// Service records every payroll batch in job_runs. Bookkeeping failures are
// logged and never change the job's own result.
type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	if s.DB == nil {
		return run(ctx)
	}

	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, tenantID, jobType, statusRunning).Scan(&runID); err != nil {
		log.Warn().Err(err).Str("jobType", jobType).Msg("job run insert failed")
	}

	details, err := run(ctx)
	status := statusCompleted
	if err != nil {
		status = statusFailed
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON(details, err), runID); updErr != nil {
			log.Warn().Err(updErr).Str("jobRunId", runID).Msg("job run update failed")
		}
	}
	return details, err
}

func detailsJSON(details any, runErr error) []byte {
	if runErr != nil {
		details = map[string]any{"error": runErr.Error(), "details": details}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		log.Warn().Err(err).Msg("job details marshal failed")
		return []byte("{}")
	}
	return payload
}
