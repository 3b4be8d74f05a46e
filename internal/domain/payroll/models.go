package payroll

import "time"

// RateSet holds the statutory values for one tenant and period. Caps are
// expressed as multiples of the period's UF value.
type RateSet struct {
	ID                    string    `json:"id"`
	TenantID              string    `json:"-"`
	Period                Period    `json:"period"`
	MinimumWage           int64     `json:"minimumWage"`
	UFValue               float64   `json:"ufValue"`
	UTMValue              float64   `json:"utmValue"`
	AFPWorkerRate         float64   `json:"afpWorkerRate"`
	FonasaRate            float64   `json:"fonasaRate"`
	AFCWorkerIndefinite   float64   `json:"afcWorkerIndefinite"`
	AFCWorkerFixedTerm    float64   `json:"afcWorkerFixedTerm"`
	AFCEmployerIndefinite float64   `json:"afcEmployerIndefinite"`
	AFCEmployerFixedTerm  float64   `json:"afcEmployerFixedTerm"`
	AccidentInsuranceRate float64   `json:"accidentInsuranceRate"`
	GratificationRate     float64   `json:"gratificationRate"`
	GratificationCapUF    float64   `json:"gratificationCapUf"`
	FamilyAllowanceAmount int64     `json:"familyAllowanceAmount"`
	AFPCapUF              float64   `json:"afpCapUf"`
	HealthCapUF           float64   `json:"healthCapUf"`
	CreatedAt             time.Time `json:"createdAt"`
}

type Employee struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	NationalID   string `json:"nationalId"`
	Position     string `json:"position"`
	Email        string `json:"email,omitempty"`
	BaseSalary   int64  `json:"baseSalary"`
	ContractType string `json:"contractType"`
	Active       bool   `json:"active"`
}

type AttendanceRecord struct {
	EmployeeID    string    `json:"employeeId"`
	Date          time.Time `json:"date"`
	NormalHours   float64   `json:"normalHours"`
	OvertimeHours float64   `json:"overtimeHours"`
	Status        string    `json:"status"`
}

type Run struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"-"`
	Period          Period     `json:"period"`
	RateSetID       string     `json:"rateSetId"`
	TotalEmployees  int        `json:"totalEmployees"`
	TotalGrossPay   int64      `json:"totalGrossPay"`
	TotalDeductions int64      `json:"totalDeductions"`
	TotalNetPay     int64      `json:"totalNetPay"`
	Status          string     `json:"status"`
	CalculatedAt    *time.Time `json:"calculatedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// LineItem is one employee's computed pay for a run. Identity fields are
// snapshots taken at calculation time.
type LineItem struct {
	ID                  string    `json:"id"`
	RunID               string    `json:"payrollRunId"`
	Sequence            int       `json:"sequence"`
	EmployeeID          string    `json:"employeeId"`
	EmployeeName        string    `json:"employeeName"`
	EmployeeNationalID  string    `json:"employeeNationalId"`
	Position            string    `json:"position"`
	ContractType        string    `json:"contractType"`
	WorkedDays          int       `json:"workedDays"`
	NormalHours         float64   `json:"normalHours"`
	OvertimeHours       float64   `json:"overtimeHours"`
	BaseSalary          int64     `json:"baseSalary"`
	NormalPay           int64     `json:"normalPay"`
	OvertimeAmount      int64     `json:"overtimeAmount"`
	GratificationAmount int64     `json:"gratificationAmount"`
	FamilyAllowance     int64     `json:"familyAllowance"`
	GrossTaxable        int64     `json:"grossTaxable"`
	GrossNonTaxable     int64     `json:"grossNonTaxable"`
	AFPDeduction        int64     `json:"afpDeduction"`
	HealthDeduction     int64     `json:"healthDeduction"`
	AFCDeduction        int64     `json:"afcDeduction"`
	TaxDeduction        int64     `json:"taxDeduction"`
	NetPay              int64     `json:"netPay"`
	PayslipEmailSent    bool      `json:"payslipEmailSent"`
	CreatedAt           time.Time `json:"createdAt"`
}

func (li LineItem) TotalDeductions() int64 {
	return li.AFPDeduction + li.HealthDeduction + li.AFCDeduction + li.TaxDeduction
}

func (li LineItem) LegalDeductions() int64 {
	return li.AFPDeduction + li.HealthDeduction + li.AFCDeduction
}

func (li LineItem) TotalEarnings() int64 {
	return li.GrossTaxable + li.GrossNonTaxable
}

type RunTotals struct {
	TotalEmployees  int   `json:"totalEmployees"`
	TotalGrossPay   int64 `json:"totalGrossPay"`
	TotalDeductions int64 `json:"totalDeductions"`
	TotalNetPay     int64 `json:"totalNetPay"`
}

type DispatchSummary struct {
	Success      bool     `json:"success"`
	TotalEmails  int      `json:"totalEmails"`
	SuccessCount int      `json:"successCount"`
	ErrorCount   int      `json:"errorCount"`
	AlreadySent  int      `json:"alreadySent"`
	Errors       []string `json:"errors"`
}
