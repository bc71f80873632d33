package ledger

import "errors"

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidSchedule = errors.New("invalid installment schedule")
	ErrInvalidPayment  = errors.New("invalid payment")
	ErrInvalidClient   = errors.New("client name and phone are required")
	ErrClientHasLoans  = errors.New("client still has loans")
)
