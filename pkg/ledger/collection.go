package ledger

import (
	"fmt"
	"strings"

	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

// CollectionMessage writes the payment reminder for one installment. Days
// late appear only once the installment is overdue; the amount already paid
// and the remaining balance only once something was paid.
func CollectionMessage(client *models.Client, b models.Breakdown) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dear %s,\n", client.Name)
	sb.WriteString("As agreed, payments made after the due date accrue 1% interest per day on the open amount until settled.\n\n")

	fmt.Fprintf(&sb, "Installment %d\n", b.Number)
	fmt.Fprintf(&sb, "Amount: %s\n", formatMoney(b.TotalDue))
	fmt.Fprintf(&sb, "Due date: %s\n", b.DueDate)
	if b.DaysLate > 0 {
		fmt.Fprintf(&sb, "Days late: %d\n", b.DaysLate)
	}
	if b.AmountPaid.IsPositive() {
		fmt.Fprintf(&sb, "Already paid: %s\n", formatMoney(b.AmountPaid))
		fmt.Fprintf(&sb, "Balance: %s\n", formatMoney(b.OutstandingBalance))
	}
	return sb.String()
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(centPlaces)
}
