package payroll

import "errors"

var (
	ErrInvalidPeriod           = errors.New("period must be formatted as YYYY-MM")
	ErrInvalidRateSet          = errors.New("rate set values out of range")
	ErrRateNotConfigured       = errors.New("no rate set configured for period")
	ErrRateSetExists           = errors.New("rate set already exists for period")
	ErrRunNotFound             = errors.New("payroll run not found")
	ErrRunExists               = errors.New("payroll run already exists for period")
	ErrRunLocked               = errors.New("payroll run is being calculated")
	ErrInvalidStatusTransition = errors.New("invalid payroll run status transition")
	ErrNoActiveEmployees       = errors.New("no active employees for payroll run")
	ErrLineItemNotFound        = errors.New("payroll line item not found")
	ErrPersistence             = errors.New("payroll persistence failed")
	ErrRender                  = errors.New("payslip render failed")
	ErrEmailDispatch           = errors.New("payslip email dispatch failed")
	ErrUnsupportedFormat       = errors.New("unsupported payslip format")
)
