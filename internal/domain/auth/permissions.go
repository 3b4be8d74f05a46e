package auth

import "context"

const (
	RoleAdmin   = "ADMIN"
	RolePayroll = "PAYROLL"
	RoleViewer  = "VIEWER"
)

const (
	PermPayrollRead     = "payroll.read"
	PermPayrollWrite    = "payroll.write"
	PermPayrollRun      = "payroll.run"
	PermPayrollFinalize = "payroll.finalize"
	PermPayslipSend     = "payroll.payslips.send"
	PermAuditRead       = "audit.read"
)

var RolePermissions = map[string][]string{
	RoleViewer: {
		PermPayrollRead,
	},
	RolePayroll: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermPayslipSend,
	},
	RoleAdmin: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermPayrollFinalize,
		PermPayslipSend,
		PermAuditRead,
	},
}

// StaticPermissions answers permission checks from RolePermissions.
type StaticPermissions struct {
	grants map[string]map[string]bool
}

func NewStaticPermissions(roles map[string][]string) *StaticPermissions {
	grants := make(map[string]map[string]bool, len(roles))
	for role, perms := range roles {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		grants[role] = set
	}
	return &StaticPermissions{grants: grants}
}

func (s *StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	return s.grants[role][permission], nil
}
