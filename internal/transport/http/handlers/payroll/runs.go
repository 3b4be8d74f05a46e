package payrollhandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"siteadmin/internal/domain/audit"
	"siteadmin/internal/domain/payroll"
	"siteadmin/internal/transport/http/api"
	"siteadmin/internal/transport/http/middleware"
	"siteadmin/internal/transport/http/shared"
)

const runAuditLimit = 100

type rateSetRequest struct {
	Period                string  `json:"period" validate:"required,datetime=2006-01"`
	MinimumWage           int64   `json:"minimumWage" validate:"gte=0"`
	UFValue               float64 `json:"ufValue" validate:"gt=0"`
	UTMValue              float64 `json:"utmValue" validate:"gt=0"`
	AFPWorkerRate         float64 `json:"afpWorkerRate" validate:"gte=0,lte=1"`
	FonasaRate            float64 `json:"fonasaRate" validate:"gte=0,lte=1"`
	AFCWorkerIndefinite   float64 `json:"afcWorkerIndefinite" validate:"gte=0,lte=1"`
	AFCWorkerFixedTerm    float64 `json:"afcWorkerFixedTerm" validate:"gte=0,lte=1"`
	AFCEmployerIndefinite float64 `json:"afcEmployerIndefinite" validate:"gte=0,lte=1"`
	AFCEmployerFixedTerm  float64 `json:"afcEmployerFixedTerm" validate:"gte=0,lte=1"`
	AccidentInsuranceRate float64 `json:"accidentInsuranceRate" validate:"gte=0,lte=1"`
	GratificationRate     float64 `json:"gratificationRate" validate:"gte=0,lte=1"`
	GratificationCapUF    float64 `json:"gratificationCapUf" validate:"gte=0"`
	FamilyAllowanceAmount int64   `json:"familyAllowanceAmount" validate:"gte=0"`
	AFPCapUF              float64 `json:"afpCapUf" validate:"gte=0"`
	HealthCapUF           float64 `json:"healthCapUf" validate:"gte=0"`
}

func (p rateSetRequest) rateSet() payroll.RateSet {
	return payroll.RateSet{
		Period:                payroll.Period(p.Period),
		MinimumWage:           p.MinimumWage,
		UFValue:               p.UFValue,
		UTMValue:              p.UTMValue,
		AFPWorkerRate:         p.AFPWorkerRate,
		FonasaRate:            p.FonasaRate,
		AFCWorkerIndefinite:   p.AFCWorkerIndefinite,
		AFCWorkerFixedTerm:    p.AFCWorkerFixedTerm,
		AFCEmployerIndefinite: p.AFCEmployerIndefinite,
		AFCEmployerFixedTerm:  p.AFCEmployerFixedTerm,
		AccidentInsuranceRate: p.AccidentInsuranceRate,
		GratificationRate:     p.GratificationRate,
		GratificationCapUF:    p.GratificationCapUF,
		FamilyAllowanceAmount: p.FamilyAllowanceAmount,
		AFPCapUF:              p.AFPCapUF,
		HealthCapUF:           p.HealthCapUF,
	}
}

type createRunRequest struct {
	Period string `json:"period" validate:"required,datetime=2006-01"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=approved paid"`
}

func (h *Handler) handleListRateSets(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	sets, err := h.Service.ListRateSets(r.Context(), user.TenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	api.Success(w, sets, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateRateSet(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload rateSetRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	created, err := h.Service.CreateRateSet(r.Context(), user.TenantID, payload.rateSet())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.record(r, user, audit.ActionRateSetCreate, "rate_set", created.ID, created)
	api.Created(w, created, requestID)
}

func (h *Handler) handleGetRateSet(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	set, err := h.Service.GetRateSet(r.Context(), user.TenantID, chi.URLParam(r, "period"))
	if errors.Is(err, payroll.ErrRateNotConfigured) {
		api.Fail(w, http.StatusNotFound, "rate_set_not_found", "no rate set configured for period", requestID)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	api.Success(w, set, requestID)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := shared.ParsePagination(r, 24, 120)
	runs, total, err := h.Service.ListRuns(r.Context(), user.TenantID, page.Limit, page.Offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, map[string]any{"runs": runs, "page": page.Meta(total)}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload createRunRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	run, err := h.Service.CreateRun(r.Context(), user.TenantID, payload.Period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.record(r, user, audit.ActionRunCreate, "payroll_run", run.ID, run)
	api.Created(w, run, requestID)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	run, err := h.Service.GetRun(r.Context(), user.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	items, err := h.Service.ListLineItems(r.Context(), user.TenantID, chi.URLParam(r, "runID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTransitionRun(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	runID := chi.URLParam(r, "runID")

	var payload transitionRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	before, err := h.Service.GetRun(r.Context(), user.TenantID, runID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	run, err := h.Service.TransitionRun(r.Context(), user.TenantID, runID, payload.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.record(r, user, audit.ActionRunStatus, "payroll_run", runID, map[string]string{"from": before.Status, "to": run.Status})
	api.Success(w, run, requestID)
}

func (h *Handler) handleRunAudit(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	events, err := h.Audit.ListForEntity(r.Context(), user.TenantID, "payroll_run", chi.URLParam(r, "runID"), runAuditLimit)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", requestID)
		return
	}
	api.Success(w, events, requestID)
}
