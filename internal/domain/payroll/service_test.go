package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

type fakeStore struct {
	mu         sync.Mutex
	rates      map[Period]RateSet
	runs       map[string]Run
	items      map[string][]LineItem
	employees  []Employee
	attendance []AttendanceRecord
	emails     map[string]string
	locked     map[string]bool
	failOn     string
	sent       map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rates:  map[Period]RateSet{},
		runs:   map[string]Run{},
		items:  map[string][]LineItem{},
		emails: map[string]string{},
		locked: map[string]bool{},
		sent:   map[string]bool{},
	}
}

func (f *fakeStore) GetRateSet(_ context.Context, tenantID string, period Period) (RateSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rates, ok := f.rates[period]
	if !ok {
		return RateSet{}, fmt.Errorf("%w: %s", ErrRateNotConfigured, period)
	}
	rates.TenantID = tenantID
	return rates, nil
}

func (f *fakeStore) CreateRateSet(_ context.Context, _ string, rates RateSet) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rates[rates.Period]; ok {
		return "", ErrRateSetExists
	}
	rates.ID = "rates-" + string(rates.Period)
	f.rates[rates.Period] = rates
	return rates.ID, nil
}

func (f *fakeStore) ListRateSets(context.Context, string) ([]RateSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RateSet
	for _, r := range f.rates {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) CreateRun(_ context.Context, tenantID string, period Period, rateSetID string) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range f.runs {
		if run.Period == period {
			return Run{}, ErrRunExists
		}
	}
	run := Run{ID: "run-" + string(period), TenantID: tenantID, Period: period, RateSetID: rateSetID, Status: RunStatusDraft}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeStore) GetRun(_ context.Context, _ string, runID string) (Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (f *fakeStore) CountRuns(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs), nil
}

func (f *fakeStore) ListRuns(context.Context, string, int, int) ([]Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Run
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, _ string, runID, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.Status != from {
		return ErrInvalidStatusTransition
	}
	run.Status = to
	f.runs[runID] = run
	return nil
}

func (f *fakeStore) GetLineItem(_ context.Context, _ string, itemID string) (LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, items := range f.items {
		for _, item := range items {
			if item.ID == itemID {
				item.PayslipEmailSent = f.sent[item.ID]
				return item, nil
			}
		}
	}
	return LineItem{}, ErrLineItemNotFound
}

func (f *fakeStore) ListLineItems(_ context.Context, _ string, runID string) ([]LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LineItem, 0, len(f.items[runID]))
	for _, item := range f.items[runID] {
		item.PayslipEmailSent = f.sent[item.ID]
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeStore) EmployeeEmails(_ context.Context, _ string, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if email := f.emails[id]; email != "" {
			out[id] = email
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPayslipEmailSent(_ context.Context, _ string, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "mark" {
		return errors.New("connection reset")
	}
	f.sent[itemID] = true
	return nil
}

// WithRunLock stages writes on a copy and applies them only when fn succeeds.
func (f *fakeStore) WithRunLock(ctx context.Context, _ string, runID string, fn func(context.Context, RunTxAPI) error) error {
	f.mu.Lock()
	if f.locked[runID] {
		f.mu.Unlock()
		return ErrRunLocked
	}
	run, ok := f.runs[runID]
	if !ok {
		f.mu.Unlock()
		return ErrRunNotFound
	}
	f.locked[runID] = true
	f.mu.Unlock()

	tx := &fakeTx{store: f, run: run}
	err := fn(ctx, tx)

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locked, runID)
	if err != nil {
		return err
	}
	if tx.replaced {
		f.items[runID] = tx.items
	}
	f.runs[runID] = tx.run
	return nil
}

type fakeTx struct {
	store    *fakeStore
	run      Run
	items    []LineItem
	replaced bool
}

func (t *fakeTx) Run() Run { return t.run }

func (t *fakeTx) ListActiveEmployees(context.Context, string) ([]Employee, error) {
	if t.store.failOn == "employees" {
		return nil, errors.New("connection reset")
	}
	var out []Employee
	for _, e := range t.store.employees {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *fakeTx) ListApprovedAttendance(_ context.Context, _ string, start, end time.Time) ([]AttendanceRecord, error) {
	var out []AttendanceRecord
	for _, r := range t.store.attendance {
		if r.Status == AttendanceApproved && !r.Date.Before(start) && !r.Date.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *fakeTx) ReplaceLineItems(_ context.Context, runID string, items []LineItem) error {
	t.items = make([]LineItem, 0, len(items))
	for _, item := range items {
		item.ID = fmt.Sprintf("%s-item-%d", runID, item.Sequence)
		item.RunID = runID
		t.items = append(t.items, item)
	}
	t.replaced = true
	return nil
}

func (t *fakeTx) CompleteRun(_ context.Context, _ string, rateSetID string, totals RunTotals, calculatedAt time.Time) error {
	if t.store.failOn == "complete" {
		return errors.New("deadlock detected")
	}
	t.run.RateSetID = rateSetID
	t.run.TotalEmployees = totals.TotalEmployees
	t.run.TotalGrossPay = totals.TotalGrossPay
	t.run.TotalDeductions = totals.TotalDeductions
	t.run.TotalNetPay = totals.TotalNetPay
	t.run.Status = RunStatusCalculated
	t.run.CalculatedAt = &calculatedAt
	return nil
}

type fakeRenderer struct {
	failFor map[string]bool
}

func (r fakeRenderer) RenderHTML(in PayslipInput) ([]byte, error) {
	if r.failFor[in.Item.EmployeeID] {
		return nil, errors.New("template exploded")
	}
	return []byte("<html>" + in.Item.EmployeeName + "</html>"), nil
}

func (r fakeRenderer) RenderPDF(in PayslipInput) ([]byte, error) {
	if r.failFor[in.Item.EmployeeID] {
		return nil, errors.New("template exploded")
	}
	return []byte("%PDF-1.3"), nil
}

func (fakeRenderer) Subject(in PayslipInput) string {
	return "Liquidacion " + in.Period.MonthName()
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []Message
	failFor map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.To] {
		return errors.New("smtp 550 mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type recordedEvent struct {
	eventType string
	key       string
}

type fakePublisher struct {
	events []recordedEvent
}

func (p *fakePublisher) Publish(_ context.Context, eventType, key string, _ any) error {
	p.events = append(p.events, recordedEvent{eventType: eventType, key: key})
	return nil
}

func testRateSet() RateSet {
	return RateSet{
		ID:                    "rates-2026-10",
		Period:                testPeriod,
		MinimumWage:           500000,
		UFValue:               38000,
		UTMValue:              65000,
		AFPWorkerRate:         0.1027,
		FonasaRate:            0.07,
		AFCWorkerIndefinite:   0.006,
		AFCWorkerFixedTerm:    0.03,
		AFCEmployerIndefinite: 0.024,
		AFCEmployerFixedTerm:  0.03,
		AccidentInsuranceRate: 0.0093,
		GratificationRate:     0.25,
		GratificationCapUF:    125000,
		FamilyAllowanceAmount: 15000,
		AFPCapUF:              81.6,
		HealthCapUF:           81.6,
	}
}

type fixture struct {
	store    *fakeStore
	mailer   *fakeMailer
	events   *fakePublisher
	renderer fakeRenderer
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newFakeStore(),
		mailer:   &fakeMailer{failFor: map[string]bool{}},
		events:   &fakePublisher{},
		renderer: fakeRenderer{failFor: map[string]bool{}},
	}
	f.store.rates[testPeriod] = testRateSet()
	f.store.runs["run-1"] = Run{ID: "run-1", TenantID: testTenant, Period: testPeriod, Status: RunStatusDraft}
	f.svc = NewService(Dependencies{
		Store:     f.store,
		Renderer:  f.renderer,
		Mailer:    f.mailer,
		Events:    f.events,
		EmailFrom: "rrhh@example.cl",
		Now:       func() time.Time { return time.Date(2026, time.November, 2, 9, 0, 0, 0, time.UTC) },
	})
	return f
}

func (f *fixture) addEmployee(id, name, email string, salary int64) {
	f.store.employees = append(f.store.employees, Employee{
		ID: id, FullName: name, BaseSalary: salary, ContractType: ContractIndefinite, Active: true,
	})
	f.store.emails[id] = email
	f.store.attendance = append(f.store.attendance, fullMonth(id, 30, 0)...)
}

func TestCalculateRunPersistsTotals(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", "Juan Pérez", "juan@example.cl", 800000)

	totals, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	assert.Equal(t, 1, totals.TotalEmployees)
	assert.Equal(t, int64(1015000), totals.TotalGrossPay)
	assert.Equal(t, int64(836300), totals.TotalNetPay)
	assert.Equal(t, totals.TotalGrossPay-totals.TotalDeductions, totals.TotalNetPay)

	run := f.store.runs["run-1"]
	assert.Equal(t, RunStatusCalculated, run.Status)
	assert.Equal(t, "rates-2026-10", run.RateSetID)
	require.NotNil(t, run.CalculatedAt)
	require.Len(t, f.store.items["run-1"], 1)
	assert.Equal(t, 1, f.store.items["run-1"][0].Sequence)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, EventRunCalculated, f.events.events[0].eventType)
}

func TestCalculateRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", "Juan Pérez", "juan@example.cl", 800000)
	f.addEmployee("e2", "Ana Soto", "ana@example.cl", 650000)

	first, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.NoError(t, err)
	firstItems := f.store.items["run-1"]

	second, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstItems, f.store.items["run-1"])
}

func TestCalculateRunWithoutRatesWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", "Juan Pérez", "juan@example.cl", 800000)
	delete(f.store.rates, testPeriod)

	_, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.ErrorIs(t, err, ErrRateNotConfigured)

	assert.Equal(t, RunStatusDraft, f.store.runs["run-1"].Status)
	assert.Empty(t, f.store.items["run-1"])
	assert.Empty(t, f.events.events)
}

func TestCalculateRunWithoutActiveEmployees(t *testing.T) {
	f := newFixture(t)
	f.store.employees = []Employee{{ID: "e9", FullName: "Ex Empleado", BaseSalary: 700000, Active: false}}

	_, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.ErrorIs(t, err, ErrNoActiveEmployees)
	assert.Equal(t, RunStatusDraft, f.store.runs["run-1"].Status)
}

func TestCalculateRunRollsBackOnStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", "Juan Pérez", "juan@example.cl", 800000)
	_, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.NoError(t, err)
	before := f.store.runs["run-1"]

	f.addEmployee("e2", "Ana Soto", "ana@example.cl", 650000)
	f.store.failOn = "complete"
	_, err = f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.ErrorIs(t, err, ErrPersistence)

	assert.Len(t, f.store.items["run-1"], 1)
	assert.Equal(t, before, f.store.runs["run-1"])
}

func TestCalculateRunWrapsReadFailures(t *testing.T) {
	f := newFixture(t)
	f.store.failOn = "employees"

	_, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.ErrorIs(t, err, ErrPersistence)
}

func TestCalculateRunRejectsApprovedRun(t *testing.T) {
	f := newFixture(t)
	f.addEmployee("e1", "Juan Pérez", "juan@example.cl", 800000)
	run := f.store.runs["run-1"]
	run.Status = RunStatusApproved
	f.store.runs["run-1"] = run

	_, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCalculateRunLockedOrMissing(t *testing.T) {
	f := newFixture(t)
	f.store.locked["run-1"] = true

	_, err := f.svc.CalculateRun(context.Background(), testTenant, "run-1")
	require.ErrorIs(t, err, ErrRunLocked)

	_, err = f.svc.CalculateRun(context.Background(), testTenant, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestTransitionRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.TransitionRun(ctx, testTenant, "run-1", RunStatusApproved)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	f.addEmployee("e1", "Juan Pérez", "juan@example.cl", 800000)
	_, err = f.svc.CalculateRun(ctx, testTenant, "run-1")
	require.NoError(t, err)

	_, err = f.svc.TransitionRun(ctx, testTenant, "run-1", RunStatusPaid)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	run, err := f.svc.TransitionRun(ctx, testTenant, "run-1", RunStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, RunStatusApproved, run.Status)

	run, err = f.svc.TransitionRun(ctx, testTenant, "run-1", RunStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPaid, run.Status)

	_, err = f.svc.TransitionRun(ctx, testTenant, "run-1", RunStatusDraft)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, err = f.svc.TransitionRun(ctx, testTenant, "run-1", "archived")
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCreateRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRun(ctx, testTenant, "2026-13")
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = f.svc.CreateRun(ctx, testTenant, "2026-11")
	require.ErrorIs(t, err, ErrRateNotConfigured)

	delete(f.store.runs, "run-1")
	run, err := f.svc.CreateRun(ctx, testTenant, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDraft, run.Status)
	assert.Equal(t, "rates-2026-10", run.RateSetID)

	_, err = f.svc.CreateRun(ctx, testTenant, "2026-10")
	require.ErrorIs(t, err, ErrRunExists)
}

func TestCreateRateSetValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := testRateSet()
	bad.Period = "2026-11"
	bad.FonasaRate = 7
	_, err := f.svc.CreateRateSet(ctx, testTenant, bad)
	require.ErrorIs(t, err, ErrInvalidRateSet)

	_, err = f.svc.CreateRateSet(ctx, testTenant, testRateSet())
	require.ErrorIs(t, err, ErrRateSetExists)

	next := testRateSet()
	next.Period = "2026-11"
	created, err := f.svc.CreateRateSet(ctx, testTenant, next)
	require.NoError(t, err)
	assert.Equal(t, "rates-2026-11", created.ID)
	assert.Equal(t, testTenant, created.TenantID)
}

func TestSendPayslipsToleratesPerEmployeeFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEmployee("e1", "Ana Soto", "ana@example.cl", 650000)
	f.addEmployee("e2", "Juan Pérez", "juan@example.cl", 800000)
	f.addEmployee("e3", "Luis Rojas", "", 700000)
	f.addEmployee("e4", "Marta Díaz", "marta@example.cl", 900000)
	f.addEmployee("e5", "Pedro Vera", "pedro@example.cl", 550000)
	f.renderer.failFor["e4"] = true

	_, err := f.svc.CalculateRun(ctx, testTenant, "run-1")
	require.NoError(t, err)

	summary, err := f.svc.SendPayslips(ctx, testTenant, "run-1")
	require.NoError(t, err)

	assert.False(t, summary.Success)
	assert.Equal(t, 4, summary.TotalEmails)
	assert.Equal(t, 3, summary.SuccessCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Equal(t, 0, summary.AlreadySent)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "Marta Díaz")
	assert.Contains(t, summary.Errors[0], ErrRender.Error())

	require.Len(t, f.mailer.sent, 3)
	msg := f.mailer.sent[0]
	assert.Equal(t, "rrhh@example.cl", msg.From)
	assert.Equal(t, "ana@example.cl", msg.To)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "liquidacion_Ana_Soto_2026-10.pdf", msg.Attachments[0].FileName)
	assert.Len(t, f.store.sent, 3)

	again, err := f.svc.SendPayslips(ctx, testTenant, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, again.AlreadySent)
	assert.Equal(t, 1, again.TotalEmails)
	assert.Equal(t, 1, again.ErrorCount)
	assert.Len(t, f.mailer.sent, 3)
}

func TestSendPayslipsReportsDispatchFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEmployee("e1", "Ana Soto", "ana@example.cl", 650000)
	f.addEmployee("e2", "Juan Pérez", "juan@example.cl", 800000)
	f.mailer.failFor["juan@example.cl"] = true

	_, err := f.svc.CalculateRun(ctx, testTenant, "run-1")
	require.NoError(t, err)

	summary, err := f.svc.SendPayslips(ctx, testTenant, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalEmails)
	assert.Equal(t, 1, summary.SuccessCount)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], ErrEmailDispatch.Error())
	assert.False(t, f.store.sent["run-1-item-2"])
}

func TestSendPayslipsReportsUnstoredSentFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEmployee("e1", "Ana Soto", "ana@example.cl", 650000)

	_, err := f.svc.CalculateRun(ctx, testTenant, "run-1")
	require.NoError(t, err)

	f.store.failOn = "mark"
	summary, err := f.svc.SendPayslips(ctx, testTenant, "run-1")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, 1, summary.TotalEmails)
	assert.Equal(t, 0, summary.SuccessCount)
	assert.Equal(t, 1, summary.ErrorCount)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "sent flag not stored")
	assert.Contains(t, summary.Errors[0], ErrPersistence.Error())
	assert.Len(t, f.mailer.sent, 1)
}

func TestSendPayslipsUnknownRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SendPayslips(context.Background(), testTenant, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestGeneratePayslip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEmployee("e1", "Juan  Pérez Soto", "juan@example.cl", 800000)
	_, err := f.svc.CalculateRun(ctx, testTenant, "run-1")
	require.NoError(t, err)

	slip, err := f.svc.GeneratePayslip(ctx, testTenant, "run-1-item-1", "")
	require.NoError(t, err)
	assert.Equal(t, "liquidacion_Juan_Pérez_Soto_2026-10.html", slip.FileName)
	assert.Equal(t, "text/html; charset=utf-8", slip.ContentType)
	assert.Contains(t, string(slip.Content), "Juan  Pérez Soto")

	slip, err = f.svc.GeneratePayslip(ctx, testTenant, "run-1-item-1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", slip.ContentType)
	assert.Equal(t, "liquidacion_Juan_Pérez_Soto_2026-10.pdf", slip.FileName)

	_, err = f.svc.GeneratePayslip(ctx, testTenant, "run-1-item-1", "docx")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = f.svc.GeneratePayslip(ctx, testTenant, "nope", FormatHTML)
	require.ErrorIs(t, err, ErrLineItemNotFound)
}

func TestGeneratePayslipRenderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addEmployee("e1", "Juan Pérez", "juan@example.cl", 800000)
	f.renderer.failFor["e1"] = true
	_, err := f.svc.CalculateRun(ctx, testTenant, "run-1")
	require.NoError(t, err)

	_, err = f.svc.GeneratePayslip(ctx, testTenant, "run-1-item-1", FormatHTML)
	require.ErrorIs(t, err, ErrRender)
}
