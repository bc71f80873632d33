package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Client struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"` // Dedup key when merging backups
	Address      string    `json:"address"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Installment is one scheduled payment. AmountPaid is the only field that
// changes after origination.
type Installment struct {
	Number         int             `json:"number"`
	PrincipalShare decimal.Decimal `json:"principalShare"`
	ContractAmount decimal.Decimal `json:"contractAmount"` // Principal share plus contract interest
	DueDate        Date            `json:"dueDate"`
	AmountPaid     decimal.Decimal `json:"amountPaid"`
}

type Loan struct {
	ID               uuid.UUID       `json:"id"`
	ClientID         uuid.UUID       `json:"clientId"`
	Principal        decimal.Decimal `json:"principal"`
	InstallmentCount int             `json:"installmentCount"`
	OriginationDate  Date            `json:"originationDate"`
	Installments     []Installment   `json:"installments"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Installment returns a pointer to the installment with the given number, or
// nil when the loan has none.
func (l *Loan) Installment(number int) *Installment {
	for i := range l.Installments {
		if l.Installments[i].Number == number {
			return &l.Installments[i]
		}
	}
	return nil
}
