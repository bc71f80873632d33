package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The types in this file are computed from stored records and an "as of"
// date. They are never persisted.

type InstallmentStatus string

const (
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentLate    InstallmentStatus = "late"
	InstallmentOpen    InstallmentStatus = "open"
	InstallmentPending InstallmentStatus = "pending"
)

// LoanStatus is shared by loans and client summaries.
type LoanStatus string

const (
	LoanPaid   LoanStatus = "paid"
	LoanLate   LoanStatus = "late"
	LoanActive LoanStatus = "active"
)

type AlertBucket string

const (
	AlertNone     AlertBucket = "none"
	AlertOverdue  AlertBucket = "overdue"
	AlertDueToday AlertBucket = "dueToday"
	AlertDueSoon  AlertBucket = "dueSoon"
)

// Urgency orders buckets for display, most urgent highest.
func (b AlertBucket) Urgency() int {
	switch b {
	case AlertOverdue:
		return 3
	case AlertDueToday:
		return 2
	case AlertDueSoon:
		return 1
	}
	return 0
}

type Breakdown struct {
	Number             int               `json:"number"`
	DueDate            Date              `json:"dueDate"`
	ContractAmount     decimal.Decimal   `json:"contractAmount"`
	LateInterest       decimal.Decimal   `json:"lateInterest"`
	TotalDue           decimal.Decimal   `json:"totalDue"`
	AmountPaid         decimal.Decimal   `json:"amountPaid"`
	OutstandingBalance decimal.Decimal   `json:"outstandingBalance"`
	DaysLate           int               `json:"daysLate"`
	Status             InstallmentStatus `json:"status"`
}

type LoanSummary struct {
	LoanID                uuid.UUID       `json:"loanId"`
	ClientID              uuid.UUID       `json:"clientId"`
	Principal             decimal.Decimal `json:"principal"`
	InstallmentCount      int             `json:"installmentCount"`
	OriginationDate       Date            `json:"originationDate"`
	ContractTotal         decimal.Decimal `json:"contractTotal"`
	TotalLateInterest     decimal.Decimal `json:"totalLateInterest"`
	TotalWithLateInterest decimal.Decimal `json:"totalWithLateInterest"`
	TotalPaid             decimal.Decimal `json:"totalPaid"`
	OutstandingBalance    decimal.Decimal `json:"outstandingBalance"`
	MaxDaysLate           int             `json:"maxDaysLate"`
	Status                LoanStatus      `json:"status"`
	Installments          []Breakdown     `json:"installments"`
}

type ClientSummary struct {
	ClientID         uuid.UUID       `json:"clientId"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone"`
	LoanCount        int             `json:"loanCount"`
	TotalPrincipal   decimal.Decimal `json:"totalPrincipal"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	MaxDaysLate      int             `json:"maxDaysLate"`
	Status           LoanStatus      `json:"status"`
	Loans            []LoanSummary   `json:"loans"`
}

// PortfolioTotals rolls up whichever subview of client summaries it was
// computed from.
type PortfolioTotals struct {
	ClientCount      int             `json:"clientCount"`
	LoanCount        int             `json:"loanCount"`
	TotalPrincipal   decimal.Decimal `json:"totalPrincipal"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
}

type AlertEntry struct {
	ClientID           uuid.UUID       `json:"clientId"`
	ClientName         string          `json:"clientName"`
	ClientPhone        string          `json:"clientPhone"`
	LoanID             uuid.UUID       `json:"loanId"`
	InstallmentNumber  int             `json:"installmentNumber"`
	DueDate            Date            `json:"dueDate"`
	DaysRemaining      int             `json:"daysRemaining"`
	OutstandingBalance decimal.Decimal `json:"outstandingBalance"`
	Bucket             AlertBucket     `json:"bucket"`
	Urgency            int             `json:"urgency"`
}

// ClientListing is a client as shown in the client directory.
type ClientListing struct {
	Client
	LoanCount     int  `json:"loanCount"`
	HasActiveLoan bool `json:"hasActiveLoan"`
}

// CollectionNotice is the reminder sent to a client about one installment.
type CollectionNotice struct {
	ClientID    uuid.UUID `json:"clientId"`
	ClientName  string    `json:"clientName"`
	ClientPhone string    `json:"clientPhone"`
	LoanID      uuid.UUID `json:"loanId"`
	Installment Breakdown `json:"installment"`
	Message     string    `json:"message"`
}
