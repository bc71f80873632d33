package ledger

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

// SummarizePortfolio builds one summary per client holding at least one loan
// that is not fully paid. Settled loans are left out of every figure. The
// result is ordered by longest delay, then largest outstanding balance, then
// client id.
func SummarizePortfolio(clients []*models.Client, loansByClient map[uuid.UUID][]*models.Loan, asOf models.Date) []models.ClientSummary {
	summaries := make([]models.ClientSummary, 0, len(clients))
	for _, client := range clients {
		cs := models.ClientSummary{
			ClientID:         client.ID,
			Name:             client.Name,
			Phone:            client.Phone,
			TotalPrincipal:   decimal.Zero,
			TotalOutstanding: decimal.Zero,
			Status:           models.LoanActive,
		}
		for _, loan := range loansByClient[client.ID] {
			ls := SummarizeLoan(loan, asOf)
			if ls.Status == models.LoanPaid {
				continue
			}
			cs.Loans = append(cs.Loans, ls)
			cs.LoanCount++
			cs.TotalPrincipal = cs.TotalPrincipal.Add(ls.Principal)
			cs.TotalOutstanding = cs.TotalOutstanding.Add(ls.OutstandingBalance)
			if ls.MaxDaysLate > cs.MaxDaysLate {
				cs.MaxDaysLate = ls.MaxDaysLate
			}
			if ls.Status == models.LoanLate {
				cs.Status = models.LoanLate
			}
		}
		if cs.LoanCount == 0 {
			continue
		}
		summaries = append(summaries, cs)
	}

	slices.SortStableFunc(summaries, comparePortfolio)
	return summaries
}

func comparePortfolio(a, b models.ClientSummary) int {
	if a.MaxDaysLate != b.MaxDaysLate {
		if a.MaxDaysLate > b.MaxDaysLate {
			return -1
		}
		return 1
	}
	if c := b.TotalOutstanding.Cmp(a.TotalOutstanding); c != 0 {
		return c
	}
	return strings.Compare(a.ClientID.String(), b.ClientID.String())
}

// FilterByStatus keeps the summaries with the given client status, preserving
// order.
func FilterByStatus(summaries []models.ClientSummary, status models.LoanStatus) []models.ClientSummary {
	filtered := make([]models.ClientSummary, 0, len(summaries))
	for _, cs := range summaries {
		if cs.Status == status {
			filtered = append(filtered, cs)
		}
	}
	return filtered
}

// Totals rolls up the given summaries, usually a filtered view.
func Totals(summaries []models.ClientSummary) models.PortfolioTotals {
	totals := models.PortfolioTotals{
		TotalPrincipal:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
	}
	for _, cs := range summaries {
		totals.ClientCount++
		totals.LoanCount += cs.LoanCount
		totals.TotalPrincipal = totals.TotalPrincipal.Add(cs.TotalPrincipal)
		totals.TotalOutstanding = totals.TotalOutstanding.Add(cs.TotalOutstanding)
	}
	return totals
}
