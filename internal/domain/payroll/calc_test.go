package payroll

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeriod = Period("2026-10")

func scenarioRates() ResolvedRates {
	return ResolvedRates{
		GratificationRate: decimal.RequireFromString("0.25"),
		GratificationCap:  decimal.NewFromInt(4750000000),
		FamilyAllowance:   decimal.NewFromInt(15000),
		AFPWorkerRate:     decimal.RequireFromString("0.1027"),
		AFPCap:            decimal.NewFromInt(1_000_000_000),
		FonasaRate:        decimal.RequireFromString("0.07"),
		HealthCap:         decimal.NewFromInt(1_000_000_000),
		AFCIndefinite:     decimal.RequireFromString("0.006"),
		AFCFixedTerm:      decimal.RequireFromString("0.03"),
		TaxThreshold:      decimal.NewFromInt(65000).Mul(decimal.RequireFromString("13.5")),
	}
}

func fullMonth(employeeID string, days int, overtimePerDay float64) []AttendanceRecord {
	records := make([]AttendanceRecord, 0, days)
	for d := 1; d <= days; d++ {
		records = append(records, AttendanceRecord{
			EmployeeID:    employeeID,
			Date:          time.Date(2026, time.October, d, 0, 0, 0, 0, time.UTC),
			NormalHours:   8,
			OvertimeHours: overtimePerDay,
			Status:        AttendanceApproved,
		})
	}
	return records
}

func assertNetInvariant(t *testing.T, item LineItem) {
	t.Helper()
	assert.Equal(t, item.GrossTaxable+item.GrossNonTaxable-item.AFPDeduction-item.HealthDeduction-item.AFCDeduction-item.TaxDeduction, item.NetPay)
}

func TestComputeLineItemReferenceScenario(t *testing.T) {
	employee := Employee{ID: "e1", FullName: "Juan Pérez", BaseSalary: 800000, ContractType: ContractIndefinite, Active: true}

	item := ComputeLineItem(employee, fullMonth("e1", 30, 0), testPeriod, scenarioRates())

	assert.Equal(t, 30, item.WorkedDays)
	assert.Equal(t, 240.0, item.NormalHours)
	assert.Equal(t, int64(800000), item.NormalPay)
	assert.Equal(t, int64(0), item.OvertimeAmount)
	assert.Equal(t, int64(200000), item.GratificationAmount)
	assert.Equal(t, int64(1000000), item.GrossTaxable)
	assert.Equal(t, int64(15000), item.GrossNonTaxable)
	assert.Equal(t, int64(102700), item.AFPDeduction)
	assert.Equal(t, int64(70000), item.HealthDeduction)
	assert.Equal(t, int64(6000), item.AFCDeduction)
	assert.Equal(t, int64(0), item.TaxDeduction)
	assert.Equal(t, int64(836300), item.NetPay)
	assertNetInvariant(t, item)
}

func TestComputeLineItemZeroWorkedDays(t *testing.T) {
	employee := Employee{ID: "e1", BaseSalary: 720000, ContractType: ContractIndefinite, Active: true}
	pending := []AttendanceRecord{{
		EmployeeID:    "e1",
		Date:          time.Date(2026, time.October, 3, 0, 0, 0, 0, time.UTC),
		NormalHours:   8,
		OvertimeHours: 4,
		Status:        "pending",
	}}

	item := ComputeLineItem(employee, pending, testPeriod, scenarioRates())
	assert.Equal(t, 0, item.WorkedDays)
	assert.Equal(t, int64(0), item.NormalPay)
	assert.Equal(t, int64(0), item.OvertimeAmount)
	assert.Equal(t, int64(0), item.GrossTaxable)
	assert.Equal(t, int64(15000), item.NetPay)
	assertNetInvariant(t, item)
}

func TestOvertimeDependsOnlyOnOvertimeHours(t *testing.T) {
	employee := Employee{ID: "e1", BaseSalary: 720000, ContractType: ContractIndefinite, Active: true}
	overtimeDay := AttendanceRecord{
		EmployeeID:    "e1",
		Date:          time.Date(2026, time.October, 3, 0, 0, 0, 0, time.UTC),
		OvertimeHours: 4,
		Status:        AttendanceApproved,
	}

	single := ComputeLineItem(employee, []AttendanceRecord{overtimeDay}, testPeriod, scenarioRates())
	month := append(fullMonth("e1", 20, 0), overtimeDay)
	many := ComputeLineItem(employee, month, testPeriod, scenarioRates())

	// 720000 / 30 / 8 * 1.5 = 4500 per overtime hour
	assert.Equal(t, int64(18000), single.OvertimeAmount)
	assert.Equal(t, single.OvertimeAmount, many.OvertimeAmount)
	assert.Equal(t, int64(24000), single.NormalPay)
	assert.Equal(t, 21, many.WorkedDays)
	assertNetInvariant(t, single)
	assertNetInvariant(t, many)
}

func TestComputeLineItemSkipsRecordsOutsidePeriod(t *testing.T) {
	employee := Employee{ID: "e1", BaseSalary: 900000, ContractType: ContractFixedTerm, Active: true}
	attendance := []AttendanceRecord{
		{EmployeeID: "e1", Date: time.Date(2026, time.September, 30, 0, 0, 0, 0, time.UTC), NormalHours: 8, Status: AttendanceApproved},
		{EmployeeID: "e1", Date: time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC), NormalHours: 8, Status: AttendanceApproved},
		{EmployeeID: "e1", Date: time.Date(2026, time.October, 31, 0, 0, 0, 0, time.UTC), NormalHours: 8, Status: AttendanceApproved},
		{EmployeeID: "e1", Date: time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC), NormalHours: 8, Status: AttendanceApproved},
		{EmployeeID: "e2", Date: time.Date(2026, time.October, 2, 0, 0, 0, 0, time.UTC), NormalHours: 8, Status: AttendanceApproved},
	}

	item := ComputeLineItem(employee, attendance, testPeriod, scenarioRates())
	assert.Equal(t, 2, item.WorkedDays)
	assert.Equal(t, int64(60000), item.NormalPay)
}

func TestComputeLineItemFixedTermUsesFixedTermAFC(t *testing.T) {
	employee := Employee{ID: "e1", BaseSalary: 800000, ContractType: ContractFixedTerm, Active: true}
	item := ComputeLineItem(employee, fullMonth("e1", 30, 0), testPeriod, scenarioRates())
	assert.Equal(t, int64(30000), item.AFCDeduction)
	assertNetInvariant(t, item)
}

func TestComputeLineItemAppliesFlatTaxAboveThreshold(t *testing.T) {
	employee := Employee{ID: "e1", BaseSalary: 2000000, ContractType: ContractIndefinite, Active: true}
	item := ComputeLineItem(employee, fullMonth("e1", 30, 0), testPeriod, scenarioRates())

	// gross 2500000, afp 256750, health 175000, tax base 2068250
	assert.Equal(t, int64(2500000), item.GrossTaxable)
	assert.Equal(t, int64(103413), item.TaxDeduction)
	assertNetInvariant(t, item)
}

func TestComputeLineItemRespectsCaps(t *testing.T) {
	rates := scenarioRates()
	rates.GratificationCap = decimal.NewFromInt(209396)
	rates.AFPCap = decimal.NewFromInt(300000)
	rates.HealthCap = decimal.NewFromInt(200000)

	for _, salary := range []int64{500000, 5_000_000, 900_000_000_000} {
		employee := Employee{ID: "e1", BaseSalary: salary, ContractType: ContractIndefinite, Active: true}
		item := ComputeLineItem(employee, fullMonth("e1", 30, 2), testPeriod, rates)
		assert.LessOrEqual(t, item.GratificationAmount, int64(209396), "salary=%d", salary)
		assert.LessOrEqual(t, item.AFPDeduction, int64(300000), "salary=%d", salary)
		assert.LessOrEqual(t, item.HealthDeduction, int64(200000), "salary=%d", salary)
		assertNetInvariant(t, item)
	}
}

func TestComputeLineItemFractionalCapsRoundDown(t *testing.T) {
	resolved := RateSet{
		Period:             testPeriod,
		UFValue:            37571.86,
		UTMValue:           65000,
		AFPWorkerRate:      0.1027,
		FonasaRate:         0.07,
		GratificationRate:  0.25,
		GratificationCapUF: 4.75,
		AFPCapUF:           81.6,
		HealthCapUF:        81.6,
	}.Resolve()
	require.False(t, resolved.AFPCap.Equal(resolved.AFPCap.Floor()))

	for _, salary := range []int64{50_000_000, 29_852_511, 3_000_000} {
		employee := Employee{ID: "e1", BaseSalary: salary, ContractType: ContractIndefinite, Active: true}
		item := ComputeLineItem(employee, fullMonth("e1", 30, 0), testPeriod, resolved)
		assert.LessOrEqual(t, item.AFPDeduction, resolved.AFPCap.IntPart(), "salary=%d", salary)
		assert.LessOrEqual(t, item.HealthDeduction, resolved.HealthCap.IntPart(), "salary=%d", salary)
		assert.LessOrEqual(t, item.GratificationAmount, resolved.GratificationCap.IntPart(), "salary=%d", salary)
		assertNetInvariant(t, item)
	}

	employee := Employee{ID: "e1", BaseSalary: 50_000_000, ContractType: ContractIndefinite, Active: true}
	item := ComputeLineItem(employee, fullMonth("e1", 30, 0), testPeriod, resolved)
	assert.Equal(t, int64(3065863), item.AFPDeduction)
	assert.Equal(t, int64(3065863), item.HealthDeduction)
}

func TestCappedKeepsUncappedRounding(t *testing.T) {
	limit := decimal.RequireFromString("1000.776")
	assert.True(t, capped(decimal.RequireFromString("999.5"), limit).Equal(decimal.RequireFromString("999.5")))
	assert.Equal(t, int64(1000), pesos(capped(decimal.RequireFromString("999.5"), limit)))
	assert.True(t, capped(decimal.RequireFromString("1000.6"), limit).Equal(decimal.NewFromInt(1000)))
	assert.True(t, capped(decimal.NewFromInt(5000), limit).Equal(decimal.NewFromInt(1000)))
}

func TestFoldSkipsInactiveAndAccumulates(t *testing.T) {
	employees := []Employee{
		{ID: "e1", FullName: "Ana", BaseSalary: 800000, ContractType: ContractIndefinite, Active: true},
		{ID: "e2", FullName: "Luis", BaseSalary: 600000, ContractType: ContractIndefinite, Active: false},
		{ID: "e3", FullName: "Rosa", BaseSalary: 800000, ContractType: ContractIndefinite, Active: true},
	}
	attendance := append(fullMonth("e1", 30, 0), fullMonth("e3", 30, 0)...)

	items, totals := Fold(employees, attendance, testPeriod, scenarioRates())
	require.Len(t, items, 2)
	assert.Equal(t, "e1", items[0].EmployeeID)
	assert.Equal(t, 1, items[0].Sequence)
	assert.Equal(t, "e3", items[1].EmployeeID)
	assert.Equal(t, 2, items[1].Sequence)

	assert.Equal(t, 2, totals.TotalEmployees)
	assert.Equal(t, int64(2*1015000), totals.TotalGrossPay)
	assert.Equal(t, int64(2*(102700+70000+6000)), totals.TotalDeductions)
	assert.Equal(t, int64(2*836300), totals.TotalNetPay)
	assert.Equal(t, totals.TotalGrossPay-totals.TotalDeductions, totals.TotalNetPay)
}

func TestRateSetResolveConvertsCaps(t *testing.T) {
	rates := RateSet{
		Period:             testPeriod,
		UFValue:            38000,
		UTMValue:           65000,
		GratificationCapUF: 5,
		AFPCapUF:           84.3,
		HealthCapUF:        84.3,
	}
	resolved := rates.Resolve()
	assert.True(t, resolved.GratificationCap.Equal(decimal.NewFromInt(190000)))
	assert.True(t, resolved.AFPCap.Equal(decimal.NewFromInt(3203400)))
	assert.True(t, resolved.TaxThreshold.Equal(decimal.NewFromInt(877500)))
}

func TestRateSetValidate(t *testing.T) {
	valid := RateSet{Period: testPeriod, AFPWorkerRate: 0.1027, FonasaRate: 0.07, GratificationRate: 0.25, UFValue: 38000}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.FonasaRate = 7
	assert.ErrorIs(t, invalid.Validate(), ErrInvalidRateSet)

	negative := valid
	negative.FamilyAllowanceAmount = -1
	assert.ErrorIs(t, negative.Validate(), ErrInvalidRateSet)

	badPeriod := valid
	badPeriod.Period = "2026-13"
	assert.ErrorIs(t, badPeriod.Validate(), ErrInvalidPeriod)
}
