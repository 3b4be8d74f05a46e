package payroll

const (
	RunStatusDraft      = "draft"
	RunStatusCalculated = "calculated"
	RunStatusApproved   = "approved"
	RunStatusPaid       = "paid"

	ContractIndefinite = "indefinite"
	ContractFixedTerm  = "fixed_term"

	AttendanceApproved = "approved"

	EmployeeStatusActive = "active"

	FormatHTML = "html"
	FormatPDF  = "pdf"
)

// Fixed conventions of the simplified Chilean payroll model.
const (
	daysPerMonth      = 30
	hoursPerDay       = 8
	overtimePremium   = "1.5"
	taxThresholdUTM   = "13.5"
	flatIncomeTaxRate = "0.05"
)

var runStatusOrder = map[string]int{
	RunStatusDraft:      0,
	RunStatusCalculated: 1,
	RunStatusApproved:   2,
	RunStatusPaid:       3,
}
