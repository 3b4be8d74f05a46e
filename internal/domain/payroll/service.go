package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	EventRunCalculated      = "payroll.run.calculated"
	EventPayslipsDispatched = "payroll.payslips.dispatched"
)

// PayslipInput is everything a renderer needs to lay out one pay slip.
type PayslipInput struct {
	Item     LineItem
	Period   Period
	Rates    RateSet
	IssuedAt time.Time
}

type PayslipRenderer interface {
	RenderHTML(in PayslipInput) ([]byte, error)
	RenderPDF(in PayslipInput) ([]byte, error)
	Subject(in PayslipInput) string
}

type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

type Message struct {
	From        string
	To          string
	Subject     string
	HTML        []byte
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

type Metrics interface {
	RunCalculated()
	PayslipSent()
	PayslipFailed()
}

type Payslip struct {
	FileName    string
	ContentType string
	Content     []byte
}

type Dependencies struct {
	Store     StoreAPI
	Rates     RateResolver
	Renderer  PayslipRenderer
	Mailer    Mailer
	Events    EventPublisher
	Metrics   Metrics
	EmailFrom string
	Now       func() time.Time
}

type Service struct {
	store     StoreAPI
	rates     RateResolver
	renderer  PayslipRenderer
	mailer    Mailer
	events    EventPublisher
	metrics   Metrics
	emailFrom string
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		store:     deps.Store,
		rates:     deps.Rates,
		renderer:  deps.Renderer,
		mailer:    deps.Mailer,
		events:    deps.Events,
		metrics:   deps.Metrics,
		emailFrom: deps.EmailFrom,
		now:       deps.Now,
	}
	if s.rates == nil {
		s.rates = NewStoreResolver(deps.Store)
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, any) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RunCalculated() {}
func (noopMetrics) PayslipSent()   {}
func (noopMetrics) PayslipFailed() {}

func (s *Service) CreateRateSet(ctx context.Context, tenantID string, rates RateSet) (RateSet, error) {
	if err := rates.Validate(); err != nil {
		return RateSet{}, err
	}
	id, err := s.store.CreateRateSet(ctx, tenantID, rates)
	if err != nil {
		return RateSet{}, classify(err)
	}
	rates.ID = id
	rates.TenantID = tenantID
	return rates, nil
}

func (s *Service) ListRateSets(ctx context.Context, tenantID string) ([]RateSet, error) {
	rates, err := s.store.ListRateSets(ctx, tenantID)
	if err != nil {
		return nil, classify(err)
	}
	return rates, nil
}

func (s *Service) GetRateSet(ctx context.Context, tenantID string, period string) (RateSet, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return RateSet{}, err
	}
	rates, err := s.rates.Resolve(ctx, tenantID, p)
	if err != nil {
		return RateSet{}, classify(err)
	}
	return rates, nil
}

func (s *Service) CreateRun(ctx context.Context, tenantID, period string) (Run, error) {
	p, err := ParsePeriod(period)
	if err != nil {
		return Run{}, err
	}
	rates, err := s.rates.Resolve(ctx, tenantID, p)
	if err != nil {
		return Run{}, classify(err)
	}
	run, err := s.store.CreateRun(ctx, tenantID, p, rates.ID)
	if err != nil {
		return Run{}, classify(err)
	}
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, tenantID, runID string) (Run, error) {
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return Run{}, classify(err)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, tenantID string, limit, offset int) ([]Run, int, error) {
	total, err := s.store.CountRuns(ctx, tenantID)
	if err != nil {
		return nil, 0, classify(err)
	}
	runs, err := s.store.ListRuns(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, 0, classify(err)
	}
	return runs, total, nil
}

func (s *Service) ListLineItems(ctx context.Context, tenantID, runID string) ([]LineItem, error) {
	if _, err := s.GetRun(ctx, tenantID, runID); err != nil {
		return nil, err
	}
	items, err := s.store.ListLineItems(ctx, tenantID, runID)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

func (s *Service) GetLineItem(ctx context.Context, tenantID, itemID string) (LineItem, error) {
	item, err := s.store.GetLineItem(ctx, tenantID, itemID)
	if err != nil {
		return LineItem{}, classify(err)
	}
	return item, nil
}

// CalculateRun recomputes every line item of the run inside one locked
// transaction. Previous items are replaced, so repeating it is idempotent.
func (s *Service) CalculateRun(ctx context.Context, tenantID, runID string) (RunTotals, error) {
	var totals RunTotals
	var period Period
	err := s.store.WithRunLock(ctx, tenantID, runID, func(ctx context.Context, tx RunTxAPI) error {
		run := tx.Run()
		if run.Status == RunStatusApproved || run.Status == RunStatusPaid {
			return fmt.Errorf("%w: run is %s", ErrInvalidStatusTransition, run.Status)
		}
		rates, err := s.rates.Resolve(ctx, tenantID, run.Period)
		if err != nil {
			return err
		}
		employees, err := tx.ListActiveEmployees(ctx, tenantID)
		if err != nil {
			return persistence(err)
		}
		if len(employees) == 0 {
			return ErrNoActiveEmployees
		}
		attendance, err := tx.ListApprovedAttendance(ctx, tenantID, run.Period.Start(), run.Period.End())
		if err != nil {
			return persistence(err)
		}

		items, runTotals := Fold(employees, attendance, run.Period, rates.Resolve())
		if len(items) == 0 {
			return ErrNoActiveEmployees
		}
		if err := tx.ReplaceLineItems(ctx, run.ID, items); err != nil {
			return persistence(err)
		}
		if err := tx.CompleteRun(ctx, run.ID, rates.ID, runTotals, s.now().UTC()); err != nil {
			return persistence(err)
		}
		totals = runTotals
		period = run.Period
		return nil
	})
	if err != nil {
		return RunTotals{}, classify(err)
	}

	s.metrics.RunCalculated()
	log.Info().
		Str("tenantId", tenantID).
		Str("runId", runID).
		Str("period", string(period)).
		Int("employees", totals.TotalEmployees).
		Int64("netPay", totals.TotalNetPay).
		Msg("payroll run calculated")
	s.publish(ctx, EventRunCalculated, runID, map[string]any{
		"tenantId":        tenantID,
		"runId":           runID,
		"period":          string(period),
		"totalEmployees":  totals.TotalEmployees,
		"totalGrossPay":   totals.TotalGrossPay,
		"totalDeductions": totals.TotalDeductions,
		"totalNetPay":     totals.TotalNetPay,
	})
	return totals, nil
}

// TransitionRun moves the run one step forward. Approving requires a
// calculated run and paying requires an approved one.
func (s *Service) TransitionRun(ctx context.Context, tenantID, runID, status string) (Run, error) {
	target, ok := runStatusOrder[status]
	if !ok || status == RunStatusDraft || status == RunStatusCalculated {
		return Run{}, fmt.Errorf("%w: cannot set status %q", ErrInvalidStatusTransition, status)
	}
	run, err := s.GetRun(ctx, tenantID, runID)
	if err != nil {
		return Run{}, err
	}
	if runStatusOrder[run.Status]+1 != target {
		return Run{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, run.Status, status)
	}
	if err := s.store.UpdateRunStatus(ctx, tenantID, runID, run.Status, status); err != nil {
		return Run{}, classify(err)
	}
	run.Status = status
	return run, nil
}

func (s *Service) GeneratePayslip(ctx context.Context, tenantID, itemID, format string) (Payslip, error) {
	if format == "" {
		format = FormatHTML
	}
	if format != FormatHTML && format != FormatPDF {
		return Payslip{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	item, err := s.GetLineItem(ctx, tenantID, itemID)
	if err != nil {
		return Payslip{}, err
	}
	in, err := s.payslipInput(ctx, tenantID, item.RunID)
	if err != nil {
		return Payslip{}, err
	}
	in.Item = item

	slip := Payslip{FileName: PayslipFileName(item.EmployeeName, in.Period, format)}
	if format == FormatPDF {
		slip.ContentType = "application/pdf"
		slip.Content, err = s.renderer.RenderPDF(in)
	} else {
		slip.ContentType = "text/html; charset=utf-8"
		slip.Content, err = s.renderer.RenderHTML(in)
	}
	if err != nil {
		return Payslip{}, renderErr(err)
	}
	return slip, nil
}

// SendPayslips emails every pending pay slip of the run. Per-employee
// failures are collected in the summary and never abort the batch.
func (s *Service) SendPayslips(ctx context.Context, tenantID, runID string) (DispatchSummary, error) {
	in, err := s.payslipInput(ctx, tenantID, runID)
	if err != nil {
		return DispatchSummary{}, err
	}
	items, err := s.store.ListLineItems(ctx, tenantID, runID)
	if err != nil {
		return DispatchSummary{}, classify(err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.EmployeeID)
	}
	emails, err := s.store.EmployeeEmails(ctx, tenantID, ids)
	if err != nil {
		return DispatchSummary{}, classify(err)
	}

	summary := DispatchSummary{Errors: []string{}}
	for _, item := range items {
		to := strings.TrimSpace(emails[item.EmployeeID])
		if to == "" {
			continue
		}
		if item.PayslipEmailSent {
			summary.AlreadySent++
			continue
		}
		summary.TotalEmails++

		in.Item = item
		if err := s.dispatch(ctx, in, to); err != nil {
			summary.ErrorCount++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", item.EmployeeName, err))
			s.metrics.PayslipFailed()
			log.Warn().Err(err).
				Str("tenantId", tenantID).
				Str("runId", runID).
				Str("itemId", item.ID).
				Msg("payslip dispatch failed")
			continue
		}
		s.metrics.PayslipSent()
		if err := s.store.MarkPayslipEmailSent(ctx, tenantID, item.ID); err != nil {
			// The mail went out but a retry would send it again.
			summary.ErrorCount++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: email sent but sent flag not stored: %v", item.EmployeeName, persistence(err)))
			log.Warn().Err(err).
				Str("tenantId", tenantID).
				Str("runId", runID).
				Str("itemId", item.ID).
				Msg("payslip sent flag update failed")
			continue
		}
		summary.SuccessCount++
	}
	summary.Success = summary.ErrorCount == 0

	s.publish(ctx, EventPayslipsDispatched, runID, map[string]any{
		"tenantId":     tenantID,
		"runId":        runID,
		"totalEmails":  summary.TotalEmails,
		"successCount": summary.SuccessCount,
		"errorCount":   summary.ErrorCount,
	})
	return summary, nil
}

func (s *Service) dispatch(ctx context.Context, in PayslipInput, to string) error {
	html, err := s.renderer.RenderHTML(in)
	if err != nil {
		return renderErr(err)
	}
	pdf, err := s.renderer.RenderPDF(in)
	if err != nil {
		return renderErr(err)
	}
	msg := Message{
		From:    s.emailFrom,
		To:      to,
		Subject: s.renderer.Subject(in),
		HTML:    html,
		Attachments: []Attachment{{
			FileName:    PayslipFileName(in.Item.EmployeeName, in.Period, FormatPDF),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrEmailDispatch, err)
	}
	return nil
}

func (s *Service) payslipInput(ctx context.Context, tenantID, runID string) (PayslipInput, error) {
	run, err := s.GetRun(ctx, tenantID, runID)
	if err != nil {
		return PayslipInput{}, err
	}
	rates, err := s.rates.Resolve(ctx, tenantID, run.Period)
	if err != nil {
		return PayslipInput{}, classify(err)
	}
	return PayslipInput{Period: run.Period, Rates: rates, IssuedAt: s.now()}, nil
}

func (s *Service) publish(ctx context.Context, eventType, key string, payload map[string]any) {
	if err := s.events.Publish(ctx, eventType, key, payload); err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("key", key).Msg("payroll event publish failed")
	}
}

// PayslipFileName builds liquidacion_<name>_<period>.<ext>.
func PayslipFileName(employeeName string, period Period, format string) string {
	name := strings.Join(strings.Fields(employeeName), "_")
	return fmt.Sprintf("liquidacion_%s_%s.%s", name, period, format)
}

var knownErrors = []error{
	ErrInvalidPeriod,
	ErrInvalidRateSet,
	ErrRateNotConfigured,
	ErrRateSetExists,
	ErrRunNotFound,
	ErrRunExists,
	ErrRunLocked,
	ErrInvalidStatusTransition,
	ErrNoActiveEmployees,
	ErrLineItemNotFound,
	ErrPersistence,
	ErrRender,
	ErrEmailDispatch,
	ErrUnsupportedFormat,
}

// classify keeps domain errors as they are and reports anything else as a
// persistence failure.
func classify(err error) error {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return persistence(err)
}

func persistence(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func renderErr(err error) error {
	if errors.Is(err, ErrRender) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRender, err)
}
