// Package report lays out portfolio data as spreadsheet rows and writes them
// to an xlsx workbook.
package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

const DefaultDueSoonDays = 7

// Input is everything a report is computed from.
type Input struct {
	Clients       []*models.Client
	LoansByClient map[uuid.UUID][]*models.Loan
	AsOf          models.Date
	DueSoonDays   int
	GeneratedAt   time.Time
}

const (
	statusPaid    = "PAID"
	statusLate    = "LATE"
	statusCurrent = "CURRENT"
	statusNoLoans = "NO LOANS"
)

var (
	summaryHeader = []any{"Client", "Phone", "Address", "Loans", "Principal", "Contract Total",
		"Late Interest", "Total Receivable", "Paid", "Outstanding", "Status"}
	installmentHeader = []any{"Client", "Phone", "Loan Date", "Principal", "Contract Total", "Installments",
		"Installment", "Due Date", "Contract Amount", "Late Interest", "Total Due", "Paid", "Outstanding", "Days Late", "Status"}
	lateHeader = []any{"Client", "Phone", "Installment", "Due Date", "Days Late", "Contract Amount",
		"Late Interest (1%/day)", "Total Due", "Paid", "Outstanding"}
	dueSoonHeader = []any{"Client", "Phone", "Installment", "Due Date", "Days Remaining",
		"Contract Amount", "Paid", "Outstanding"}
)

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// SummaryRows has one row per client, counting every loan including settled
// ones.
func SummaryRows(in Input) [][]any {
	rows := [][]any{summaryHeader}
	for _, c := range in.Clients {
		loans := in.LoansByClient[c.ID]
		principal, contract, late, receivable, paid, outstanding := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
		allPaid, anyLate := true, false
		for _, l := range loans {
			s := ledger.SummarizeLoan(l, in.AsOf)
			principal = principal.Add(s.Principal)
			contract = contract.Add(s.ContractTotal)
			late = late.Add(s.TotalLateInterest)
			receivable = receivable.Add(s.TotalWithLateInterest)
			paid = paid.Add(s.TotalPaid)
			outstanding = outstanding.Add(s.OutstandingBalance)
			if s.Status != models.LoanPaid {
				allPaid = false
			}
			if s.Status == models.LoanLate {
				anyLate = true
			}
		}

		status := statusCurrent
		switch {
		case len(loans) == 0:
			status = statusNoLoans
		case allPaid:
			status = statusPaid
		case anyLate:
			status = statusLate
		}

		rows = append(rows, []any{c.Name, c.Phone, c.Address, len(loans), money(principal), money(contract),
			money(late), money(receivable), money(paid), money(outstanding), status})
	}
	return rows
}

// InstallmentRows has one row per installment of every loan.
func InstallmentRows(in Input) [][]any {
	rows := [][]any{installmentHeader}
	for _, c := range in.Clients {
		for _, l := range in.LoansByClient[c.ID] {
			s := ledger.SummarizeLoan(l, in.AsOf)
			for _, b := range s.Installments {
				rows = append(rows, []any{c.Name, c.Phone, l.OriginationDate.String(), money(l.Principal),
					money(s.ContractTotal), l.InstallmentCount, b.Number, b.DueDate.String(), money(b.ContractAmount),
					money(b.LateInterest), money(b.TotalDue), money(b.AmountPaid), money(b.OutstandingBalance),
					b.DaysLate, strings.ToUpper(string(b.Status))})
			}
		}
	}
	return rows
}

// LateRows lists late installments. An empty list gets a single note row.
func LateRows(in Input) [][]any {
	rows := [][]any{lateHeader}
	for _, c := range in.Clients {
		for _, l := range in.LoansByClient[c.ID] {
			for _, inst := range l.Installments {
				b := ledger.Breakdown(inst, in.AsOf)
				if b.Status != models.InstallmentLate {
					continue
				}
				rows = append(rows, []any{c.Name, c.Phone, b.Number, b.DueDate.String(), b.DaysLate,
					money(b.ContractAmount), money(b.LateInterest), money(b.TotalDue), money(b.AmountPaid),
					money(b.OutstandingBalance)})
			}
		}
	}
	if len(rows) == 1 {
		rows = append(rows, []any{"No late installments"})
	}
	return rows
}

// DueSoonRows lists unpaid installments that are not late and fall due within
// the next DueSoonDays days, today included.
func DueSoonRows(in Input) [][]any {
	days := in.DueSoonDays
	if days <= 0 {
		days = DefaultDueSoonDays
	}
	rows := [][]any{dueSoonHeader}
	for _, c := range in.Clients {
		for _, l := range in.LoansByClient[c.ID] {
			for _, inst := range l.Installments {
				b := ledger.Breakdown(inst, in.AsOf)
				remaining := in.AsOf.DaysUntil(inst.DueDate)
				if b.Status != models.InstallmentOpen || remaining < 0 || remaining > days {
					continue
				}
				rows = append(rows, []any{c.Name, c.Phone, b.Number, b.DueDate.String(), remaining,
					money(b.ContractAmount), money(b.AmountPaid), money(b.OutstandingBalance)})
			}
		}
	}
	if len(rows) == 1 {
		rows = append(rows, []any{"Nothing due in the next " + strconv.Itoa(days) + " days"})
	}
	return rows
}

// Totals are the portfolio-wide figures of the Totals sheet.
type Totals struct {
	Clients             int
	ClientsWithLoans    int
	Loans               int
	Installments        int
	PaidInstallments    int
	LateInstallments    int
	OpenInstallments    int
	Principal           decimal.Decimal
	ContractTotal       decimal.Decimal
	LateInterest        decimal.Decimal
	Receivable          decimal.Decimal
	Received            decimal.Decimal
	Outstanding         decimal.Decimal
	RecoveredPercent    decimal.Decimal
	LateInstallmentsPct decimal.Decimal
}

func ComputeTotals(in Input) Totals {
	t := Totals{
		Clients:             len(in.Clients),
		Principal:           decimal.Zero,
		ContractTotal:       decimal.Zero,
		LateInterest:        decimal.Zero,
		Receivable:          decimal.Zero,
		Received:            decimal.Zero,
		Outstanding:         decimal.Zero,
		RecoveredPercent:    decimal.Zero,
		LateInstallmentsPct: decimal.Zero,
	}
	for _, c := range in.Clients {
		loans := in.LoansByClient[c.ID]
		if len(loans) > 0 {
			t.ClientsWithLoans++
		}
		t.Loans += len(loans)
		for _, l := range loans {
			s := ledger.SummarizeLoan(l, in.AsOf)
			t.Principal = t.Principal.Add(s.Principal)
			t.ContractTotal = t.ContractTotal.Add(s.ContractTotal)
			t.LateInterest = t.LateInterest.Add(s.TotalLateInterest)
			t.Receivable = t.Receivable.Add(s.TotalWithLateInterest)
			t.Received = t.Received.Add(s.TotalPaid)
			t.Outstanding = t.Outstanding.Add(s.OutstandingBalance)
			for _, b := range s.Installments {
				t.Installments++
				switch b.Status {
				case models.InstallmentPaid:
					t.PaidInstallments++
				case models.InstallmentLate:
					t.LateInstallments++
				default:
					t.OpenInstallments++
				}
			}
		}
	}

	hundred := decimal.NewFromInt(100)
	if t.Receivable.IsPositive() {
		t.RecoveredPercent = t.Received.Div(t.Receivable).Mul(hundred).Round(2)
	}
	if t.Installments > 0 {
		t.LateInstallmentsPct = decimal.NewFromInt(int64(t.LateInstallments)).
			Div(decimal.NewFromInt(int64(t.Installments))).Mul(hundred).Round(2)
	}
	return t
}

// TotalsRows is a two column label/value layout of ComputeTotals.
func TotalsRows(in Input) [][]any {
	t := ComputeTotals(in)
	return [][]any{
		{"OVERVIEW"},
		{},
		{"Clients", t.Clients},
		{"Clients with loans", t.ClientsWithLoans},
		{"Clients without loans", t.Clients - t.ClientsWithLoans},
		{"Loans", t.Loans},
		{"Installments", t.Installments},
		{},
		{"INSTALLMENTS"},
		{},
		{"Paid", t.PaidInstallments},
		{"Late", t.LateInstallments},
		{"Open", t.OpenInstallments},
		{},
		{"AMOUNTS"},
		{},
		{"Principal (no interest)", money(t.Principal)},
		{"Contract total", money(t.ContractTotal)},
		{"Late interest (1%/day)", money(t.LateInterest)},
		{"Total receivable", money(t.Receivable)},
		{"Received", money(t.Received)},
		{"Outstanding", money(t.Outstanding)},
		{},
		{"INDICATORS"},
		{},
		{"Recovered", t.RecoveredPercent.StringFixed(2) + "%"},
		{"Late installments", t.LateInstallmentsPct.StringFixed(2) + "%"},
		{},
		{"Generated at", in.GeneratedAt.Format(time.RFC3339)},
		{"As of", in.AsOf.String()},
	}
}
