package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ActionRateSetCreate   = "payroll.rate_set.create"
	ActionRunCreate       = "payroll.run.create"
	ActionRunCalculate    = "payroll.run.calculate"
	ActionRunStatus       = "payroll.run.status"
	ActionPayslipDispatch = "payroll.payslips.send"
)

// Entry is one audited change. Before and After are marshalled to JSON.
type Entry struct {
	TenantID   string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	IP         string
	Before     any
	After      any
}

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Log records entries and reads them back per entity.
type Log interface {
	Recorder
	ListForEntity(ctx context.Context, tenantID, entityType, entityID string, limit int) ([]Event, error)
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func marshalOptional(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	beforeJSON, err := marshalOptional(e.Before)
	if err != nil {
		return fmt.Errorf("marshal audit before: %w", err)
	}
	afterJSON, err := marshalOptional(e.After)
	if err != nil {
		return fmt.Errorf("marshal audit after: %w", err)
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, e.TenantID, e.ActorID, e.Action, e.EntityType, e.EntityID, beforeJSON, afterJSON, e.RequestID, e.IP)
	return err
}

// ListForEntity returns the newest events recorded against one entity.
func (s *Service) ListForEntity(ctx context.Context, tenantID, entityType, entityID string, limit int) ([]Event, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, COALESCE(actor_user_id, ''), action, entity_type, COALESCE(entity_id, ''),
           COALESCE(request_id, ''), created_at, after_json
    FROM audit_events
    WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
    ORDER BY created_at DESC
    LIMIT $4
  `, tenantID, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.CreatedAt, &evt.After); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

type noopLog struct{}

func (noopLog) Record(context.Context, Entry) error { return nil }

func (noopLog) ListForEntity(context.Context, string, string, string, int) ([]Event, error) {
	return []Event{}, nil
}

// Noop discards entries; used when no database is wired.
func Noop() Log { return noopLog{} }
