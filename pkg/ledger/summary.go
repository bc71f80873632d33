package ledger

import (
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

// SummarizeLoan folds every installment breakdown of a loan into loan totals.
// A loan is paid only when all its installments are; otherwise any late
// installment makes it late.
func SummarizeLoan(loan *models.Loan, asOf models.Date) models.LoanSummary {
	summary := models.LoanSummary{
		LoanID:             loan.ID,
		ClientID:           loan.ClientID,
		Principal:          loan.Principal,
		InstallmentCount:   loan.InstallmentCount,
		OriginationDate:    loan.OriginationDate,
		ContractTotal:      decimal.Zero,
		TotalLateInterest:  decimal.Zero,
		TotalPaid:          decimal.Zero,
		OutstandingBalance: decimal.Zero,
		Installments:       make([]models.Breakdown, 0, len(loan.Installments)),
	}

	allPaid, anyLate := true, false
	for _, inst := range loan.Installments {
		b := Breakdown(inst, asOf)
		summary.Installments = append(summary.Installments, b)

		summary.ContractTotal = summary.ContractTotal.Add(inst.ContractAmount)
		summary.TotalLateInterest = summary.TotalLateInterest.Add(b.LateInterest)
		summary.TotalPaid = summary.TotalPaid.Add(inst.AmountPaid)
		summary.OutstandingBalance = summary.OutstandingBalance.Add(b.OutstandingBalance)
		if b.DaysLate > summary.MaxDaysLate {
			summary.MaxDaysLate = b.DaysLate
		}

		if b.Status != models.InstallmentPaid {
			allPaid = false
		}
		if b.Status == models.InstallmentLate {
			anyLate = true
		}
	}

	summary.ContractTotal = summary.ContractTotal.Round(centPlaces)
	summary.TotalLateInterest = summary.TotalLateInterest.Round(centPlaces)
	summary.TotalWithLateInterest = summary.ContractTotal.Add(summary.TotalLateInterest)
	summary.TotalPaid = summary.TotalPaid.Round(centPlaces)
	summary.OutstandingBalance = summary.OutstandingBalance.Round(centPlaces)

	switch {
	case allPaid:
		summary.Status = models.LoanPaid
	case anyLate:
		summary.Status = models.LoanLate
	default:
		summary.Status = models.LoanActive
	}
	return summary
}
