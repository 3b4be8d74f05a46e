package payrollhandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"siteadmin/internal/domain/audit"
	"siteadmin/internal/domain/auth"
	"siteadmin/internal/domain/payroll"
	"siteadmin/internal/platform/jobs"
	"siteadmin/internal/transport/http/api"
	"siteadmin/internal/transport/http/middleware"
	"siteadmin/internal/transport/http/shared"
)

// Service is the part of payroll.Service the HTTP layer depends on.
type Service interface {
	CreateRateSet(ctx context.Context, tenantID string, rates payroll.RateSet) (payroll.RateSet, error)
	ListRateSets(ctx context.Context, tenantID string) ([]payroll.RateSet, error)
	GetRateSet(ctx context.Context, tenantID, period string) (payroll.RateSet, error)
	CreateRun(ctx context.Context, tenantID, period string) (payroll.Run, error)
	GetRun(ctx context.Context, tenantID, runID string) (payroll.Run, error)
	ListRuns(ctx context.Context, tenantID string, limit, offset int) ([]payroll.Run, int, error)
	ListLineItems(ctx context.Context, tenantID, runID string) ([]payroll.LineItem, error)
	CalculateRun(ctx context.Context, tenantID, runID string) (payroll.RunTotals, error)
	TransitionRun(ctx context.Context, tenantID, runID, status string) (payroll.Run, error)
	GeneratePayslip(ctx context.Context, tenantID, itemID, format string) (payroll.Payslip, error)
	SendPayslips(ctx context.Context, tenantID, runID string) (payroll.DispatchSummary, error)
}

type Handler struct {
	Service     Service
	Perms       middleware.PermissionStore
	Jobs        jobs.Runner
	Audit       audit.Log
	Idempotency *middleware.IdempotencyStore
}

func NewHandler(service Service, perms middleware.PermissionStore, runner jobs.Runner, auditLog audit.Log, idem *middleware.IdempotencyStore) *Handler {
	if runner == nil {
		runner = jobs.New(nil)
	}
	if auditLog == nil {
		auditLog = audit.Noop()
	}
	return &Handler{Service: service, Perms: perms, Jobs: runner, Audit: auditLog, Idempotency: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/functions", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRun, h.Perms)).Post("/calculate-payroll", h.handleCalculatePayroll)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Post("/generate-payslip-pdf", h.handleGeneratePayslip)
		r.With(middleware.RequirePermission(auth.PermPayslipSend, h.Perms)).Post("/send-payslips", h.handleSendPayslips)
	})
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/rate-sets", h.handleListRateSets)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/rate-sets", h.handleCreateRateSet)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/rate-sets/{period}", h.handleGetRateSet)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs", h.handleListRuns)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/runs", h.handleCreateRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}", h.handleGetRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}/items", h.handleListItems)
		r.With(middleware.RequirePermission(auth.PermPayrollFinalize, h.Perms)).Post("/runs/{runID}/status", h.handleTransitionRun)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/runs/{runID}/audit", h.handleRunAudit)
	})
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, after any) {
	entry := audit.Entry{
		TenantID:   user.TenantID,
		ActorID:    user.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		After:      after,
	}
	if err := h.Audit.Record(r.Context(), entry); err != nil {
		log.Warn().Err(err).Str("action", action).Str("entityId", entityID).Msg("audit record failed")
	}
}

type serviceError struct {
	err     error
	status  int
	code    string
	message string
}

var serviceErrors = []serviceError{
	{payroll.ErrInvalidPeriod, http.StatusBadRequest, "validation_error", "period must be formatted as YYYY-MM"},
	{payroll.ErrInvalidRateSet, http.StatusBadRequest, "validation_error", "rate set values out of range"},
	{payroll.ErrUnsupportedFormat, http.StatusBadRequest, "validation_error", "format must be html or pdf"},
	{payroll.ErrRunNotFound, http.StatusNotFound, "run_not_found", "payroll run not found"},
	{payroll.ErrLineItemNotFound, http.StatusNotFound, "item_not_found", "payroll item not found"},
	{payroll.ErrRateNotConfigured, http.StatusUnprocessableEntity, "rate_not_configured", "no rate set configured for period"},
	{payroll.ErrNoActiveEmployees, http.StatusUnprocessableEntity, "no_active_employees", "no active employees for payroll run"},
	{payroll.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition", "payroll run cannot move to that status"},
	{payroll.ErrRunLocked, http.StatusConflict, "run_locked", "payroll run is being calculated"},
	{payroll.ErrRunExists, http.StatusConflict, "run_exists", "payroll run already exists for period"},
	{payroll.ErrRateSetExists, http.StatusConflict, "rate_set_exists", "rate set already exists for period"},
	{payroll.ErrRender, http.StatusInternalServerError, "render_failed", "failed to render payslip"},
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			if se.status >= http.StatusInternalServerError {
				log.Error().Err(err).Str("requestId", requestID).Msg(se.message)
			}
			api.Fail(w, se.status, se.code, se.message, requestID)
			return
		}
	}
	log.Error().Err(err).Str("requestId", requestID).Msg("payroll request failed")
	api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
}
