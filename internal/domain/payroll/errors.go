package payroll

import "errors"

var (
	ErrInvalidAmount  = errors.New("amount must be non-negative")
	ErrNoWorkingDays  = errors.New("working days must be positive")
	ErrInvalidLOPDays = errors.New("lop days must be non-negative")
)
