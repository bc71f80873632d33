package ledger

import (
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

const centPlaces = 2

var (
	// Late penalty: 1% of the contract amount per day past due, simple, uncapped.
	lateRatePerDay = decimal.NewFromFloat(0.01)
)

// Breakdown computes the financial state of an installment as of the given
// day. It has no side effects.
//
// Monetary fields are rounded to cents on return only. The paid check is made
// against the rounded balance so that paying the displayed total settles the
// installment even when the penalty has sub-cent digits.
func Breakdown(inst models.Installment, asOf models.Date) models.Breakdown {
	daysLate := 0
	if asOf.After(inst.DueDate) {
		daysLate = inst.DueDate.DaysUntil(asOf)
	}

	lateInterest := inst.ContractAmount.Mul(lateRatePerDay).Mul(decimal.NewFromInt(int64(daysLate)))
	totalDue := inst.ContractAmount.Add(lateInterest).Round(centPlaces)
	outstanding := decimal.Max(decimal.Zero, totalDue.Sub(inst.AmountPaid)).Round(centPlaces)

	return models.Breakdown{
		Number:             inst.Number,
		DueDate:            inst.DueDate,
		ContractAmount:     inst.ContractAmount.Round(centPlaces),
		LateInterest:       lateInterest.Round(centPlaces),
		TotalDue:           totalDue,
		AmountPaid:         inst.AmountPaid.Round(centPlaces),
		OutstandingBalance: outstanding,
		DaysLate:           daysLate,
		Status:             installmentStatus(inst, outstanding, daysLate, asOf),
	}
}

func installmentStatus(inst models.Installment, outstanding decimal.Decimal, daysLate int, asOf models.Date) models.InstallmentStatus {
	switch {
	case outstanding.IsZero() && inst.AmountPaid.IsPositive():
		return models.InstallmentPaid
	case daysLate > 0:
		return models.InstallmentLate
	case !asOf.After(inst.DueDate):
		return models.InstallmentOpen
	default:
		// Unreachable with date-only arithmetic: asOf after the due date
		// always yields daysLate >= 1.
		return models.InstallmentPending
	}
}
