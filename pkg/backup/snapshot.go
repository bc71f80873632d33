// Package backup exports the client and loan store to a JSON snapshot and
// merges such snapshots back in.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

const Version = "1.0"

var (
	ErrInvalidBackupFormat = errors.New("invalid backup format")
	ErrDuplicatePhone      = errors.New("existing clients share a phone number")
)

var validate = validator.New()

// ClientRecord is a client as written in a backup. Its id only links the
// client to its loans inside the same file.
type ClientRecord struct {
	ID           string     `json:"id" validate:"required"`
	Name         string     `json:"name" validate:"required"`
	Phone        string     `json:"phone" validate:"required"`
	Address      string     `json:"address"`
	RegisteredAt *time.Time `json:"registeredAt,omitempty"`
}

type LoanRecord struct {
	ID               string               `json:"id,omitempty"`
	ClientID         string               `json:"clientId,omitempty"`
	Principal        decimal.Decimal      `json:"principal"`
	InstallmentCount int                  `json:"installmentCount" validate:"gte=0"`
	OriginationDate  models.Date          `json:"originationDate"`
	Installments     []models.Installment `json:"installments"`
	CreatedAt        *time.Time           `json:"createdAt,omitempty"`
}

type Snapshot struct {
	Version      string                  `json:"version" validate:"required"`
	ExportedAt   time.Time               `json:"exportedAt"`
	TotalClients int                     `json:"totalClients"`
	TotalLoans   int                     `json:"totalLoans"`
	Clients      []ClientRecord          `json:"clients" validate:"required,dive"`
	Loans        map[string][]LoanRecord `json:"loans" validate:"required,dive,dive"`
}

// Reader is the part of the store an export needs.
type Reader interface {
	ListClients() ([]*models.Client, error)
	ListLoans(clientID uuid.UUID) ([]*models.Loan, error)
}

// Export reads every client and loan into a snapshot. Clients without loans
// are listed but get no entry in the loan map.
func Export(r Reader, exportedAt time.Time) (*Snapshot, error) {
	clients, err := r.ListClients()
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	snap := &Snapshot{
		Version:    Version,
		ExportedAt: exportedAt.UTC(),
		Clients:    make([]ClientRecord, 0, len(clients)),
		Loans:      make(map[string][]LoanRecord),
	}
	for _, c := range clients {
		registered := c.RegisteredAt
		snap.Clients = append(snap.Clients, ClientRecord{
			ID:           c.ID.String(),
			Name:         c.Name,
			Phone:        c.Phone,
			Address:      c.Address,
			RegisteredAt: &registered,
		})

		loans, err := r.ListLoans(c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list loans for client %s: %w", c.ID, err)
		}
		for _, l := range loans {
			created := l.CreatedAt
			snap.Loans[c.ID.String()] = append(snap.Loans[c.ID.String()], LoanRecord{
				ID:               l.ID.String(),
				ClientID:         l.ClientID.String(),
				Principal:        l.Principal,
				InstallmentCount: l.InstallmentCount,
				OriginationDate:  l.OriginationDate,
				Installments:     l.Installments,
				CreatedAt:        &created,
			})
			snap.TotalLoans++
		}
	}
	snap.TotalClients = len(snap.Clients)
	return snap, nil
}

// Encode writes the snapshot as indented JSON.
func Encode(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Parse decodes and validates a snapshot. It never returns a snapshot that
// Merge would reject for its shape.
func Parse(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackupFormat, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Validate checks the required top-level fields, every client record, and
// that every loan has a positive principal.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: empty snapshot", ErrInvalidBackupFormat)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackupFormat, err)
	}
	for clientID, loans := range s.Loans {
		for i, l := range loans {
			if !l.Principal.IsPositive() {
				return fmt.Errorf("%w: loan %d of client %s has principal %s", ErrInvalidBackupFormat, i, clientID, l.Principal)
			}
		}
	}
	return nil
}
