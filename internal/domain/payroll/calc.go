package payroll

import (
	"github.com/shopspring/decimal"
)

var (
	decDaysPerMonth    = decimal.NewFromInt(daysPerMonth)
	decHoursPerDay     = decimal.NewFromInt(hoursPerDay)
	decOvertimePremium = decimal.RequireFromString(overtimePremium)
	decIncomeTaxRate   = decimal.RequireFromString(flatIncomeTaxRate)
)

// Qualifies reports whether an attendance record counts toward the
// employee's pay in the given period.
func Qualifies(record AttendanceRecord, employeeID string, period Period) bool {
	return record.EmployeeID == employeeID &&
		record.Status == AttendanceApproved &&
		period.Contains(record.Date)
}

// ComputeLineItem converts one employee's base pay and attendance into a line
// item. Intermediate values stay unrounded; each emitted amount is rounded to
// whole pesos and net pay is derived from the rounded components.
func ComputeLineItem(employee Employee, attendance []AttendanceRecord, period Period, rates ResolvedRates) LineItem {
	var workedDays int
	normalHours := decimal.Zero
	overtimeHours := decimal.Zero
	for _, record := range attendance {
		if !Qualifies(record, employee.ID, period) {
			continue
		}
		workedDays++
		normalHours = normalHours.Add(decimal.NewFromFloat(record.NormalHours))
		overtimeHours = overtimeHours.Add(decimal.NewFromFloat(record.OvertimeHours))
	}

	base := decimal.NewFromInt(employee.BaseSalary)
	dailySalary := base.Div(decDaysPerMonth)
	normalPay := dailySalary.Mul(decimal.NewFromInt(int64(workedDays)))

	overtimeRate := base.Div(decDaysPerMonth).Div(decHoursPerDay).Mul(decOvertimePremium)
	overtimeAmount := overtimeHours.Mul(overtimeRate)

	taxableIncome := normalPay.Add(overtimeAmount)
	gratification := capped(taxableIncome.Mul(rates.GratificationRate), rates.GratificationCap)

	grossTaxable := normalPay.Add(overtimeAmount).Add(gratification)
	grossNonTaxable := rates.FamilyAllowance

	afp := capped(grossTaxable.Mul(rates.AFPWorkerRate), rates.AFPCap)
	health := capped(grossTaxable.Mul(rates.FonasaRate), rates.HealthCap)

	afcRate := rates.AFCFixedTerm
	if employee.ContractType == ContractIndefinite {
		afcRate = rates.AFCIndefinite
	}
	afc := grossTaxable.Mul(afcRate)

	taxBase := grossTaxable.Sub(afp).Sub(health)
	tax := decimal.Zero
	if taxBase.GreaterThan(rates.TaxThreshold) {
		tax = taxBase.Mul(decIncomeTaxRate)
	}

	item := LineItem{
		EmployeeID:          employee.ID,
		EmployeeName:        employee.FullName,
		EmployeeNationalID:  employee.NationalID,
		Position:            employee.Position,
		ContractType:        employee.ContractType,
		WorkedDays:          workedDays,
		NormalHours:         normalHours.InexactFloat64(),
		OvertimeHours:       overtimeHours.InexactFloat64(),
		BaseSalary:          employee.BaseSalary,
		NormalPay:           pesos(normalPay),
		OvertimeAmount:      pesos(overtimeAmount),
		GratificationAmount: pesos(gratification),
		FamilyAllowance:     pesos(grossNonTaxable),
		GrossTaxable:        pesos(grossTaxable),
		GrossNonTaxable:     pesos(grossNonTaxable),
		AFPDeduction:        pesos(afp),
		HealthDeduction:     pesos(health),
		AFCDeduction:        pesos(afc),
		TaxDeduction:        pesos(tax),
	}
	item.NetPay = item.GrossTaxable + item.GrossNonTaxable - item.AFPDeduction - item.HealthDeduction - item.AFCDeduction - item.TaxDeduction
	return item
}

// Fold computes line items for every active employee in roster order along
// with the run totals.
func Fold(employees []Employee, attendance []AttendanceRecord, period Period, rates ResolvedRates) ([]LineItem, RunTotals) {
	byEmployee := make(map[string][]AttendanceRecord, len(employees))
	for _, record := range attendance {
		byEmployee[record.EmployeeID] = append(byEmployee[record.EmployeeID], record)
	}

	items := make([]LineItem, 0, len(employees))
	var totals RunTotals
	for _, employee := range employees {
		if !employee.Active {
			continue
		}
		item := ComputeLineItem(employee, byEmployee[employee.ID], period, rates)
		item.Sequence = len(items) + 1
		items = append(items, item)
		totals = totals.add(item)
	}
	return items, totals
}

func (t RunTotals) add(item LineItem) RunTotals {
	return RunTotals{
		TotalEmployees:  t.TotalEmployees + 1,
		TotalGrossPay:   t.TotalGrossPay + item.GrossTaxable + item.GrossNonTaxable,
		TotalDeductions: t.TotalDeductions + item.TotalDeductions(),
		TotalNetPay:     t.TotalNetPay + item.NetPay,
	}
}

// capped limits amount to the whole-peso floor of limit, so rounding can never
// carry a capped amount past a fractional UF-derived cap.
func capped(amount, limit decimal.Decimal) decimal.Decimal {
	ceiling := limit.Floor()
	if amount.GreaterThan(ceiling) {
		return ceiling
	}
	return amount
}

func pesos(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
