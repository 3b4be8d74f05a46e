package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"

	"siteadmin/internal/domain/audit"
	"siteadmin/internal/domain/auth"
	"siteadmin/internal/domain/payroll"
	"siteadmin/internal/platform/jobs"
	"siteadmin/internal/transport/http/api"
	"siteadmin/internal/transport/http/middleware"
	"siteadmin/internal/transport/http/shared"
)

type calculateRequest struct {
	PayrollRunID string `json:"payrollRunId" validate:"required,uuid"`
}

type generateRequest struct {
	PayrollItemID string `json:"payrollItemId" validate:"required,uuid"`
	Format        string `json:"format" validate:"omitempty,oneof=html pdf"`
}

type sendRequest struct {
	PayrollRunID string `json:"payrollRunId" validate:"required,uuid"`
}

type calculateResponse struct {
	Success bool `json:"success"`
	payroll.RunTotals
	RequestID string `json:"requestId,omitempty"`
}

type generateResponse struct {
	Success     bool   `json:"success"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	HTML        string `json:"html"`
	RequestID   string `json:"requestId,omitempty"`
}

type sendResponse struct {
	payroll.DispatchSummary
	RequestID string `json:"requestId,omitempty"`
}

func currentUser(w http.ResponseWriter, r *http.Request) (auth.UserContext, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
	}
	return user, ok
}

func (h *Handler) handleCalculatePayroll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	rp := h.beginReplay(w, r, user, "calculate-payroll")
	if rp == nil {
		return
	}
	var payload calculateRequest
	if !shared.DecodeJSON(w, rp.body(), &payload, requestID) {
		return
	}

	var totals payroll.RunTotals
	_, err := h.Jobs.RunNow(r.Context(), jobs.JobPayrollCalculation, user.TenantID, func(ctx context.Context) (any, error) {
		var runErr error
		totals, runErr = h.Service.CalculateRun(ctx, user.TenantID, payload.PayrollRunID)
		return map[string]any{"payrollRunId": payload.PayrollRunID, "totals": totals}, runErr
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.record(r, user, audit.ActionRunCalculate, "payroll_run", payload.PayrollRunID, totals)
	rp.finish(w, r, http.StatusOK, calculateResponse{Success: true, RunTotals: totals, RequestID: requestID})
}

func (h *Handler) handleGeneratePayslip(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var payload generateRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	slip, err := h.Service.GeneratePayslip(r.Context(), user.TenantID, payload.PayrollItemID, payload.Format)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if payload.Format == payroll.FormatPDF {
		w.Header().Set("Content-Type", slip.ContentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": slip.FileName}))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(slip.Content); err != nil {
			log.Warn().Err(err).Str("requestId", requestID).Msg("write payslip failed")
		}
		return
	}
	api.JSON(w, http.StatusOK, generateResponse{
		Success:     true,
		FileName:    slip.FileName,
		ContentType: slip.ContentType,
		HTML:        string(slip.Content),
		RequestID:   requestID,
	})
}

func (h *Handler) handleSendPayslips(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	rp := h.beginReplay(w, r, user, "send-payslips")
	if rp == nil {
		return
	}
	var payload sendRequest
	if !shared.DecodeJSON(w, rp.body(), &payload, requestID) {
		return
	}

	var summary payroll.DispatchSummary
	_, err := h.Jobs.RunNow(r.Context(), jobs.JobPayslipDispatch, user.TenantID, func(ctx context.Context) (any, error) {
		var runErr error
		summary, runErr = h.Service.SendPayslips(ctx, user.TenantID, payload.PayrollRunID)
		return summary, runErr
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.record(r, user, audit.ActionPayslipDispatch, "payroll_run", payload.PayrollRunID, summary)
	rp.finish(w, r, http.StatusOK, sendResponse{DispatchSummary: summary, RequestID: requestID})
}

// replay carries the buffered request body and the Idempotency-Key state of
// one call. Without a key or store it only buffers the body.
type replay struct {
	store    *middleware.IdempotencyStore
	user     auth.UserContext
	endpoint string
	key      string
	hash     string
	raw      []byte
	req      *http.Request
}

// beginReplay reads the body and answers from the stored response when the
// same key and payload were seen before. It returns nil once a response has
// been written.
func (h *Handler) beginReplay(w http.ResponseWriter, r *http.Request, user auth.UserContext, endpoint string) *replay {
	requestID := middleware.GetRequestID(r.Context())
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
			return nil
		}
		api.Fail(w, http.StatusBadRequest, "invalid_json", "failed to read request body", requestID)
		return nil
	}
	rp := &replay{store: h.Idempotency, user: user, endpoint: endpoint, raw: raw, req: r}

	header := r.Header.Get(middleware.IdempotencyHeader)
	if header == "" || !h.Idempotency.Enabled() {
		return rp
	}
	key, ok := middleware.IdempotencyKey(header)
	if !ok {
		api.Fail(w, http.StatusBadRequest, "validation_error", "Idempotency-Key must be at most 200 characters", requestID)
		return nil
	}
	rp.key = key
	rp.hash = middleware.RequestHash(raw)

	stored, err := h.Idempotency.Check(r.Context(), user.TenantID, user.UserID, endpoint, key, rp.hash)
	switch {
	case errors.Is(err, middleware.ErrIdempotencyConflict):
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "Idempotency-Key was used with a different payload", requestID)
		return nil
	case err != nil:
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("idempotency lookup failed")
		rp.key = ""
		return rp
	case stored != nil:
		w.Header().Set("Idempotent-Replay", "true")
		api.Raw(w, stored.Status, stored.Body)
		return nil
	}
	return rp
}

func (rp *replay) body() *http.Request {
	rp.req.Body = io.NopCloser(bytes.NewReader(rp.raw))
	return rp.req
}

func (rp *replay) finish(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if rp.key == "" {
		api.JSON(w, status, payload)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		api.JSON(w, status, payload)
		return
	}
	if err := rp.store.Save(r.Context(), rp.user.TenantID, rp.user.UserID, rp.endpoint, rp.key, rp.hash, status, body); err != nil {
		log.Warn().Err(err).Str("endpoint", rp.endpoint).Msg("idempotency save failed")
	}
	api.Raw(w, status, body)
}
