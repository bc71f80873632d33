package ledger

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
)

// Ledger handles the business logic for clients, loans and payments.
type Ledger struct {
	storage store.Storage // Use the Storage interface
	rates   RateTable
	now     func() time.Time

	mu sync.Mutex // held across every installment read-modify-write
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage) *Ledger {
	return &Ledger{
		storage: s,
		rates:   DefaultRates,
		now:     time.Now,
	}
}

// SetClock replaces the clock used for "today" and record timestamps.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Now is the ledger clock, used for record and export timestamps.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Today is the default "as of" date for every calculation: the calendar day
// of the clock in the clock's own location.
func (l *Ledger) Today() models.Date {
	return models.DateOf(l.now())
}

// CreateClient registers a new client. Name and phone are required.
func (l *Ledger) CreateClient(name, phone, address string) (*models.Client, error) {
	name, phone = strings.TrimSpace(name), strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return nil, ErrInvalidClient
	}
	client := &models.Client{
		ID:           uuid.New(),
		Name:         name,
		Phone:        phone,
		Address:      strings.TrimSpace(address),
		RegisteredAt: l.now(),
	}
	if err := l.storage.CreateClient(client); err != nil {
		return nil, fmt.Errorf("failed to store client: %w", err)
	}
	return client, nil
}

// GetClient retrieves a client by its ID.
func (l *Ledger) GetClient(id uuid.UUID) (*models.Client, error) {
	return l.storage.GetClient(id)
}

// UpdateClient updates a client's contact fields.
func (l *Ledger) UpdateClient(client *models.Client) error {
	if strings.TrimSpace(client.Name) == "" || strings.TrimSpace(client.Phone) == "" {
		return ErrInvalidClient
	}
	return l.storage.UpdateClient(client)
}

// DeleteClient deletes a client that holds no loans. Loans must be deleted
// one by one first.
func (l *Ledger) DeleteClient(id uuid.UUID) error {
	if _, err := l.storage.GetClient(id); err != nil {
		return err
	}
	loans, err := l.storage.ListLoans(id)
	if err != nil {
		return err
	}
	if len(loans) > 0 {
		return fmt.Errorf("%w: client %s holds %d loan(s)", ErrClientHasLoans, id, len(loans))
	}
	return l.storage.DeleteClient(id)
}

// Directory lists clients matching a name query, those with open loans first.
func (l *Ledger) Directory(query string, asOf models.Date) ([]models.ClientListing, error) {
	clients, loansByClient, err := l.Snapshot()
	if err != nil {
		return nil, err
	}
	return ClientDirectory(clients, loansByClient, query, asOf), nil
}

// CreateLoan originates a loan for an existing client and stores it with its
// full schedule.
func (l *Ledger) CreateLoan(clientID uuid.UUID, principal decimal.Decimal, installmentCount int, start models.Date) (*models.Loan, error) {
	if _, err := l.storage.GetClient(clientID); err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = l.Today()
	}
	loan, err := l.rates.NewLoan(clientID, principal, installmentCount, start)
	if err != nil {
		return nil, err
	}
	loan.CreatedAt = l.now()

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	log.Printf("Originated loan %s for client %s: %s in %d installment(s)", loan.ID, clientID, principal.StringFixed(2), installmentCount)
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// ListLoans retrieves all loans of a client.
func (l *Ledger) ListLoans(clientID uuid.UUID) ([]*models.Loan, error) {
	return l.storage.ListLoans(clientID)
}

// DeleteLoan deletes a loan.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}

// LoanSummary computes the summary of a stored loan.
func (l *Ledger) LoanSummary(id uuid.UUID, asOf models.Date) (models.LoanSummary, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return models.LoanSummary{}, err
	}
	return SummarizeLoan(loan, asOf), nil
}

// RecordPayment applies a payment to one installment of a loan.
func (l *Ledger) RecordPayment(loanID uuid.UUID, number int, amount decimal.Decimal, asOf models.Date) (models.Breakdown, error) {
	return l.updateInstallment(loanID, number, asOf, func(inst *models.Installment) error {
		return ApplyPayment(inst, amount, asOf)
	})
}

// TogglePaid marks an installment as fully paid, or reverses a full payment.
func (l *Ledger) TogglePaid(loanID uuid.UUID, number int, asOf models.Date) (models.Breakdown, error) {
	return l.updateInstallment(loanID, number, asOf, func(inst *models.Installment) error {
		TogglePaid(inst, asOf)
		return nil
	})
}

// CollectionNotice builds the payment reminder for one installment.
func (l *Ledger) CollectionNotice(loanID uuid.UUID, number int, asOf models.Date) (models.CollectionNotice, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return models.CollectionNotice{}, err
	}
	inst := loan.Installment(number)
	if inst == nil {
		return models.CollectionNotice{}, fmt.Errorf("installment %d %w", number, store.ErrNotFound)
	}
	client, err := l.storage.GetClient(loan.ClientID)
	if err != nil {
		return models.CollectionNotice{}, err
	}

	b := Breakdown(*inst, asOf)
	return models.CollectionNotice{
		ClientID:    client.ID,
		ClientName:  client.Name,
		ClientPhone: client.Phone,
		LoanID:      loan.ID,
		Installment: b,
		Message:     CollectionMessage(client, b),
	}, nil
}

func (l *Ledger) updateInstallment(loanID uuid.UUID, number int, asOf models.Date, apply func(*models.Installment) error) (models.Breakdown, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return models.Breakdown{}, err
	}
	inst := loan.Installment(number)
	if inst == nil {
		return models.Breakdown{}, fmt.Errorf("installment %d %w", number, store.ErrNotFound)
	}
	if err := apply(inst); err != nil {
		return models.Breakdown{}, err
	}
	if err := l.storage.UpdateLoan(loan); err != nil {
		return models.Breakdown{}, fmt.Errorf("failed to update installment: %w", err)
	}
	return Breakdown(*inst, asOf), nil
}

// Snapshot loads every client and its loans.
func (l *Ledger) Snapshot() ([]*models.Client, map[uuid.UUID][]*models.Loan, error) {
	clients, err := l.storage.ListClients()
	if err != nil {
		return nil, nil, err
	}
	loansByClient := make(map[uuid.UUID][]*models.Loan, len(clients))
	for _, c := range clients {
		loans, err := l.storage.ListLoans(c.ID)
		if err != nil {
			return nil, nil, err
		}
		loansByClient[c.ID] = loans
	}
	return clients, loansByClient, nil
}

// Portfolio summarizes every client with unpaid loans.
func (l *Ledger) Portfolio(asOf models.Date) ([]models.ClientSummary, error) {
	clients, loansByClient, err := l.Snapshot()
	if err != nil {
		return nil, err
	}
	return SummarizePortfolio(clients, loansByClient, asOf), nil
}

// Alerts lists every alerting installment across all clients.
func (l *Ledger) Alerts(asOf models.Date, warnWindowDays int) ([]models.AlertEntry, error) {
	clients, loansByClient, err := l.Snapshot()
	if err != nil {
		return nil, err
	}
	return CollectAlerts(clients, loansByClient, asOf, warnWindowDays), nil
}
