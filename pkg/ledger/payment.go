package ledger

import (
	"fmt"

	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

// ApplyPayment adds a partial or full payment to an installment. The amount
// is taken in cents and must be positive and no larger than the balance
// outstanding on asOf.
func ApplyPayment(inst *models.Installment, amount decimal.Decimal, asOf models.Date) error {
	amount = amount.Round(centPlaces)
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be at least one cent", ErrInvalidPayment)
	}
	b := Breakdown(*inst, asOf)
	if amount.GreaterThan(b.OutstandingBalance) {
		return fmt.Errorf("%w: %s exceeds outstanding balance %s", ErrInvalidPayment, amount.StringFixed(centPlaces), b.OutstandingBalance.StringFixed(centPlaces))
	}
	inst.AmountPaid = inst.AmountPaid.Add(amount).Round(centPlaces)
	return nil
}

// TogglePaid settles an installment in full at its total due on asOf, or,
// when it is already paid, reverses it back to nothing paid. It reports
// whether the installment is paid afterwards.
func TogglePaid(inst *models.Installment, asOf models.Date) bool {
	b := Breakdown(*inst, asOf)
	if b.Status == models.InstallmentPaid {
		inst.AmountPaid = decimal.Zero
		return false
	}
	inst.AmountPaid = b.TotalDue
	return true
}
