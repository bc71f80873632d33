package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

const installmentSpacingDays = 30

// RateTable maps an installment count to the flat contract interest every
// installment of such a loan bears. New tiers are new entries.
type RateTable map[int]decimal.Decimal

// DefaultRates: 30% for a single installment, 60% per installment for two or
// more.
var DefaultRates = RateTable{
	1: decimal.NewFromFloat(0.30),
	2: decimal.NewFromFloat(0.60),
}

// Rate returns the contract rate for the given installment count. A count
// without its own entry falls through to the largest tier below it.
func (rt RateTable) Rate(installmentCount int) (decimal.Decimal, error) {
	if installmentCount < 1 {
		return decimal.Zero, fmt.Errorf("%w: installment count must be at least 1, got %d", ErrInvalidSchedule, installmentCount)
	}
	if rate, ok := rt[installmentCount]; ok {
		return rate, nil
	}
	best := 0
	for tier := range rt {
		if tier <= installmentCount && tier > best {
			best = tier
		}
	}
	if best == 0 {
		return decimal.Zero, fmt.Errorf("%w: no contract rate for %d installments", ErrInvalidSchedule, installmentCount)
	}
	return rt[best], nil
}

// Originate builds the installment schedule for a new loan using the default
// rate table.
func Originate(principal decimal.Decimal, installmentCount int, start models.Date) ([]models.Installment, error) {
	return DefaultRates.Originate(principal, installmentCount, start)
}

// Originate splits principal evenly across installmentCount installments due
// every 30 days starting 30 days after start. Each installment carries the
// contract rate on its own share.
func (rt RateTable) Originate(principal decimal.Decimal, installmentCount int, start models.Date) ([]models.Installment, error) {
	if !principal.IsPositive() {
		return nil, fmt.Errorf("%w: principal %s", ErrInvalidAmount, principal)
	}
	rate, err := rt.Rate(installmentCount)
	if err != nil {
		return nil, err
	}

	share := principal.Div(decimal.NewFromInt(int64(installmentCount)))
	contract := share.Mul(decimal.NewFromInt(1).Add(rate)).Round(centPlaces)

	installments := make([]models.Installment, installmentCount)
	for i := range installments {
		installments[i] = models.Installment{
			Number:         i + 1,
			PrincipalShare: share.Round(centPlaces),
			ContractAmount: contract,
			DueDate:        start.AddDays(installmentSpacingDays * (i + 1)),
			AmountPaid:     decimal.Zero,
		}
	}
	return installments, nil
}

// NewLoan originates a complete loan record for a client.
func (rt RateTable) NewLoan(clientID uuid.UUID, principal decimal.Decimal, installmentCount int, start models.Date) (*models.Loan, error) {
	installments, err := rt.Originate(principal, installmentCount, start)
	if err != nil {
		return nil, err
	}
	return &models.Loan{
		ID:               uuid.New(),
		ClientID:         clientID,
		Principal:        principal,
		InstallmentCount: installmentCount,
		OriginationDate:  start,
		Installments:     installments,
		CreatedAt:        time.Now(),
	}, nil
}
