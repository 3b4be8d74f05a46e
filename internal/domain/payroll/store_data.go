package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const rateSetColumns = `
    id, period, minimum_wage, uf_value, utm_value,
    afp_worker_rate, fonasa_rate,
    afc_worker_indefinite, afc_worker_fixed_term, afc_employer_indefinite, afc_employer_fixed_term,
    accident_insurance_rate, gratification_rate, gratification_cap_uf,
    family_allowance_amount, afp_cap_uf, health_cap_uf, created_at`

const runColumns = `
    id, period, COALESCE(rate_set_id::text, ''), total_employees,
    total_gross_pay, total_deductions, total_net_pay, status, calculated_at, created_at`

const lineItemColumns = `
    id, run_id, sequence, employee_id, employee_name, employee_national_id, position, contract_type,
    worked_days, normal_hours, overtime_hours, base_salary, normal_pay, overtime_amount,
    gratification_amount, family_allowance, gross_taxable, gross_non_taxable,
    afp_deduction, health_deduction, afc_deduction, tax_deduction, net_pay,
    payslip_email_sent, created_at`

func scanRateSet(row pgx.Row, tenantID string) (RateSet, error) {
	var r RateSet
	var period string
	err := row.Scan(&r.ID, &period, &r.MinimumWage, &r.UFValue, &r.UTMValue,
		&r.AFPWorkerRate, &r.FonasaRate,
		&r.AFCWorkerIndefinite, &r.AFCWorkerFixedTerm, &r.AFCEmployerIndefinite, &r.AFCEmployerFixedTerm,
		&r.AccidentInsuranceRate, &r.GratificationRate, &r.GratificationCapUF,
		&r.FamilyAllowanceAmount, &r.AFPCapUF, &r.HealthCapUF, &r.CreatedAt)
	r.Period = Period(period)
	r.TenantID = tenantID
	return r, err
}

func scanRun(row pgx.Row, tenantID string) (Run, error) {
	var run Run
	var period string
	err := row.Scan(&run.ID, &period, &run.RateSetID, &run.TotalEmployees,
		&run.TotalGrossPay, &run.TotalDeductions, &run.TotalNetPay, &run.Status, &run.CalculatedAt, &run.CreatedAt)
	run.Period = Period(period)
	run.TenantID = tenantID
	return run, err
}

func scanLineItem(row pgx.Row) (LineItem, error) {
	var li LineItem
	err := row.Scan(&li.ID, &li.RunID, &li.Sequence, &li.EmployeeID, &li.EmployeeName, &li.EmployeeNationalID, &li.Position, &li.ContractType,
		&li.WorkedDays, &li.NormalHours, &li.OvertimeHours, &li.BaseSalary, &li.NormalPay, &li.OvertimeAmount,
		&li.GratificationAmount, &li.FamilyAllowance, &li.GrossTaxable, &li.GrossNonTaxable,
		&li.AFPDeduction, &li.HealthDeduction, &li.AFCDeduction, &li.TaxDeduction, &li.NetPay,
		&li.PayslipEmailSent, &li.CreatedAt)
	return li, err
}

func (s *Store) GetRateSet(ctx context.Context, tenantID string, period Period) (RateSet, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+rateSetColumns+`
    FROM rate_sets
    WHERE tenant_id = $1 AND period = $2
  `, tenantID, string(period))
	rates, err := scanRateSet(row, tenantID)
	if isNoRows(err) {
		return RateSet{}, fmt.Errorf("%w: %s", ErrRateNotConfigured, period)
	}
	if err != nil {
		return RateSet{}, err
	}
	return rates, nil
}

func (s *Store) CreateRateSet(ctx context.Context, tenantID string, r RateSet) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO rate_sets (tenant_id, period, minimum_wage, uf_value, utm_value,
      afp_worker_rate, fonasa_rate,
      afc_worker_indefinite, afc_worker_fixed_term, afc_employer_indefinite, afc_employer_fixed_term,
      accident_insurance_rate, gratification_rate, gratification_cap_uf,
      family_allowance_amount, afp_cap_uf, health_cap_uf)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    RETURNING id
  `, tenantID, string(r.Period), r.MinimumWage, r.UFValue, r.UTMValue,
		r.AFPWorkerRate, r.FonasaRate,
		r.AFCWorkerIndefinite, r.AFCWorkerFixedTerm, r.AFCEmployerIndefinite, r.AFCEmployerFixedTerm,
		r.AccidentInsuranceRate, r.GratificationRate, r.GratificationCapUF,
		r.FamilyAllowanceAmount, r.AFPCapUF, r.HealthCapUF).Scan(&id)
	if pgCode(err) == pgUniqueViolation {
		return "", fmt.Errorf("%w: %s", ErrRateSetExists, r.Period)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) ListRateSets(ctx context.Context, tenantID string) ([]RateSet, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+rateSetColumns+`
    FROM rate_sets
    WHERE tenant_id = $1
    ORDER BY period DESC
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateSet
	for rows.Next() {
		rates, err := scanRateSet(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, rates)
	}
	return out, rows.Err()
}

func (s *Store) CreateRun(ctx context.Context, tenantID string, period Period, rateSetID string) (Run, error) {
	row := s.DB.QueryRow(ctx, `
    INSERT INTO payroll_runs (tenant_id, period, rate_set_id, status)
    VALUES ($1,$2,$3,$4)
    RETURNING `+runColumns, tenantID, string(period), rateSetID, RunStatusDraft)
	run, err := scanRun(row, tenantID)
	if pgCode(err) == pgUniqueViolation {
		return Run{}, fmt.Errorf("%w: %s", ErrRunExists, period)
	}
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (Run, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, runID)
	run, err := scanRun(row, tenantID)
	if isNoRows(err) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *Store) CountRuns(ctx context.Context, tenantID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM payroll_runs WHERE tenant_id = $1", tenantID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListRuns(ctx context.Context, tenantID string, limit, offset int) ([]Run, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs
    WHERE tenant_id = $1
    ORDER BY period DESC
    LIMIT $2 OFFSET $3
  `, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows, tenantID)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) UpdateRunStatus(ctx context.Context, tenantID, runID, from, to string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE payroll_runs SET status = $1
    WHERE tenant_id = $2 AND id = $3 AND status = $4
  `, to, tenantID, runID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatusTransition
	}
	return nil
}

func (s *Store) GetLineItem(ctx context.Context, tenantID, itemID string) (LineItem, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+lineItemColumns+`
    FROM payroll_items
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, itemID)
	item, err := scanLineItem(row)
	if isNoRows(err) {
		return LineItem{}, ErrLineItemNotFound
	}
	if err != nil {
		return LineItem{}, err
	}
	return item, nil
}

func (s *Store) ListLineItems(ctx context.Context, tenantID, runID string) ([]LineItem, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+lineItemColumns+`
    FROM payroll_items
    WHERE tenant_id = $1 AND run_id = $2
    ORDER BY sequence
  `, tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) EmployeeEmails(ctx context.Context, tenantID string, employeeIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, email
    FROM employees
    WHERE tenant_id = $1 AND id::text = ANY($2) AND COALESCE(email, '') <> ''
  `, tenantID, employeeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		out[id] = email
	}
	return out, rows.Err()
}

func (s *Store) MarkPayslipEmailSent(ctx context.Context, tenantID, itemID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE payroll_items SET payslip_email_sent = true, payslip_email_sent_at = now()
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, itemID)
	return err
}

func (s *Store) WithRunLock(ctx context.Context, tenantID, runID string, fn func(ctx context.Context, tx RunTxAPI) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
    SELECT `+runColumns+`
    FROM payroll_runs
    WHERE tenant_id = $1 AND id = $2
    FOR UPDATE NOWAIT
  `, tenantID, runID)
	run, err := scanRun(row, tenantID)
	switch {
	case isNoRows(err):
		return ErrRunNotFound
	case pgCode(err) == pgLockNotAvailable:
		return ErrRunLocked
	case err != nil:
		return err
	}

	if err := fn(ctx, &runTx{tx: tx, tenantID: tenantID, run: run}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type runTx struct {
	tx       pgx.Tx
	tenantID string
	run      Run
}

func (t *runTx) Run() Run {
	return t.run
}

func (t *runTx) ListActiveEmployees(ctx context.Context, tenantID string) ([]Employee, error) {
	rows, err := t.tx.Query(ctx, `
    SELECT id::text, full_name, COALESCE(national_id, ''), COALESCE(position, ''),
           COALESCE(email, ''), base_salary, contract_type
    FROM employees
    WHERE tenant_id = $1 AND status = $2
    ORDER BY full_name, id
  `, tenantID, EmployeeStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		employee := Employee{Active: true}
		if err := rows.Scan(&employee.ID, &employee.FullName, &employee.NationalID, &employee.Position,
			&employee.Email, &employee.BaseSalary, &employee.ContractType); err != nil {
			return nil, err
		}
		out = append(out, employee)
	}
	return out, rows.Err()
}

func (t *runTx) ListApprovedAttendance(ctx context.Context, tenantID string, start, end time.Time) ([]AttendanceRecord, error) {
	rows, err := t.tx.Query(ctx, `
    SELECT employee_id::text, work_date, normal_hours, overtime_hours, approval_status
    FROM attendance_records
    WHERE tenant_id = $1
      AND approval_status = $2
      AND work_date >= $3
      AND work_date <= $4
  `, tenantID, AttendanceApproved, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttendanceRecord
	for rows.Next() {
		var record AttendanceRecord
		if err := rows.Scan(&record.EmployeeID, &record.Date, &record.NormalHours, &record.OvertimeHours, &record.Status); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

var lineItemCopyColumns = []string{
	"id", "tenant_id", "run_id", "sequence", "employee_id", "employee_name", "employee_national_id", "position", "contract_type",
	"worked_days", "normal_hours", "overtime_hours", "base_salary", "normal_pay", "overtime_amount",
	"gratification_amount", "family_allowance", "gross_taxable", "gross_non_taxable",
	"afp_deduction", "health_deduction", "afc_deduction", "tax_deduction", "net_pay",
}

func (t *runTx) ReplaceLineItems(ctx context.Context, runID string, items []LineItem) error {
	if _, err := t.tx.Exec(ctx, "DELETE FROM payroll_items WHERE tenant_id = $1 AND run_id = $2", t.tenantID, runID); err != nil {
		return err
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"payroll_items"}, lineItemCopyColumns, pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		li := items[i]
		id := li.ID
		if id == "" {
			id = uuid.NewString()
		}
		return []any{
			id, t.tenantID, runID, li.Sequence, li.EmployeeID, li.EmployeeName, li.EmployeeNationalID, li.Position, li.ContractType,
			li.WorkedDays, li.NormalHours, li.OvertimeHours, li.BaseSalary, li.NormalPay, li.OvertimeAmount,
			li.GratificationAmount, li.FamilyAllowance, li.GrossTaxable, li.GrossNonTaxable,
			li.AFPDeduction, li.HealthDeduction, li.AFCDeduction, li.TaxDeduction, li.NetPay,
		}, nil
	}))
	return err
}

func (t *runTx) CompleteRun(ctx context.Context, runID, rateSetID string, totals RunTotals, calculatedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `
    UPDATE payroll_runs
    SET rate_set_id = $1, total_employees = $2, total_gross_pay = $3, total_deductions = $4,
        total_net_pay = $5, status = $6, calculated_at = $7
    WHERE tenant_id = $8 AND id = $9
  `, rateSetID, totals.TotalEmployees, totals.TotalGrossPay, totals.TotalDeductions,
		totals.TotalNetPay, RunStatusCalculated, calculatedAt, t.tenantID, runID)
	return err
}
