package payroll

import (
	"context"
	"time"
)

type StoreAPI interface {
	RateReader
	CreateRateSet(ctx context.Context, tenantID string, rates RateSet) (string, error)
	ListRateSets(ctx context.Context, tenantID string) ([]RateSet, error)
	CreateRun(ctx context.Context, tenantID string, period Period, rateSetID string) (Run, error)
	GetRun(ctx context.Context, tenantID, runID string) (Run, error)
	CountRuns(ctx context.Context, tenantID string) (int, error)
	ListRuns(ctx context.Context, tenantID string, limit, offset int) ([]Run, error)
	UpdateRunStatus(ctx context.Context, tenantID, runID, from, to string) error
	GetLineItem(ctx context.Context, tenantID, itemID string) (LineItem, error)
	ListLineItems(ctx context.Context, tenantID, runID string) ([]LineItem, error)
	EmployeeEmails(ctx context.Context, tenantID string, employeeIDs []string) (map[string]string, error)
	MarkPayslipEmailSent(ctx context.Context, tenantID, itemID string) error
	// WithRunLock runs fn inside one transaction holding an exclusive lock on
	// the run row. fn's error rolls the transaction back.
	WithRunLock(ctx context.Context, tenantID, runID string, fn func(ctx context.Context, tx RunTxAPI) error) error
}

// RunTxAPI is the transactional view of storage used by a calculation pass.
type RunTxAPI interface {
	Run() Run
	ListActiveEmployees(ctx context.Context, tenantID string) ([]Employee, error)
	ListApprovedAttendance(ctx context.Context, tenantID string, start, end time.Time) ([]AttendanceRecord, error)
	ReplaceLineItems(ctx context.Context, runID string, items []LineItem) error
	CompleteRun(ctx context.Context, runID, rateSetID string, totals RunTotals, calculatedAt time.Time) error
}
