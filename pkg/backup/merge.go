package backup

import (
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

// Writer is the part of the store a merge writes to.
type Writer interface {
	CreateClient(client *models.Client) error
	CreateLoan(loan *models.Loan) error
}

// Store is everything Restore needs.
type Store interface {
	Reader
	Writer
}

// Result counts what a merge did. On a failed write it holds what was
// persisted before the failure.
//
// ClientsMatched counts records that landed on a client already in the store.
// ClientsFolded counts records whose phone repeats an earlier record of the
// same snapshot and were merged into the client created for it.
type Result struct {
	ClientsCreated int `json:"clientsCreated"`
	ClientsMatched int `json:"clientsMatched"`
	ClientsFolded  int `json:"clientsFolded"`
	LoansInserted  int `json:"loansInserted"`
}

// Merge folds a snapshot into the store without touching existing records.
//
// Clients are matched by phone. A matched client keeps its own fields and
// receives the imported loans; an unknown phone creates a new client. Every
// imported loan is inserted under a fresh id, so merging the same snapshot
// twice duplicates its loans.
//
// The snapshot is validated and every loan re-derived before the first write.
// Writes are not transactional across records.
func Merge(w Writer, existing []*models.Client, snap *Snapshot, now time.Time) (Result, error) {
	var res Result
	if err := snap.Validate(); err != nil {
		return res, err
	}

	byPhone := make(map[string]*models.Client, len(existing))
	for _, c := range existing {
		key := phoneKey(c.Phone)
		if other, ok := byPhone[key]; ok {
			return res, fmt.Errorf("%w: %s and %s both use %q", ErrDuplicatePhone, other.ID, c.ID, c.Phone)
		}
		byPhone[key] = c
	}

	derived := make([][]*models.Loan, len(snap.Clients))
	for i, rec := range snap.Clients {
		for j, lr := range snap.Loans[rec.ID] {
			loan, err := deriveLoan(lr, now)
			if err != nil {
				return res, fmt.Errorf("%w: client %s loan %d: %v", ErrInvalidBackupFormat, rec.ID, j, err)
			}
			derived[i] = append(derived[i], loan)
		}
	}

	log.Printf("[MERGE][START] clients=%d loans=%d version=%s", len(snap.Clients), countLoans(derived), snap.Version)
	created := make(map[string]bool)
	for i, rec := range snap.Clients {
		key := phoneKey(rec.Phone)
		target, ok := byPhone[key]
		switch {
		case ok && created[key]:
			res.ClientsFolded++
		case ok:
			res.ClientsMatched++
		default:
			target = &models.Client{
				ID:           uuid.New(),
				Name:         strings.TrimSpace(rec.Name),
				Phone:        strings.TrimSpace(rec.Phone),
				Address:      strings.TrimSpace(rec.Address),
				RegisteredAt: now,
			}
			if rec.RegisteredAt != nil {
				target.RegisteredAt = *rec.RegisteredAt
			}
			if err := w.CreateClient(target); err != nil {
				log.Printf("[MERGE][ERR] client=%s create failed: %v", rec.ID, err)
				return res, fmt.Errorf("failed to create client %q: %w", rec.Name, err)
			}
			byPhone[key] = target
			created[key] = true
			res.ClientsCreated++
		}

		for _, loan := range derived[i] {
			loan.ID = uuid.New()
			loan.ClientID = target.ID
			if err := w.CreateLoan(loan); err != nil {
				log.Printf("[MERGE][ERR] client=%s loan insert failed: %v", target.ID, err)
				return res, fmt.Errorf("failed to insert loan for client %s: %w", target.ID, err)
			}
			res.LoansInserted++
		}
	}
	log.Printf("[MERGE][DONE] created=%d matched=%d folded=%d loans=%d", res.ClientsCreated, res.ClientsMatched, res.ClientsFolded, res.LoansInserted)
	return res, nil
}

// Restore parses a snapshot from r and merges it into s.
func Restore(s Store, r io.Reader, now time.Time) (Result, error) {
	snap, err := Parse(r)
	if err != nil {
		return Result{}, err
	}
	existing, err := s.ListClients()
	if err != nil {
		return Result{}, fmt.Errorf("failed to list clients: %w", err)
	}
	return Merge(s, existing, snap, now)
}

// deriveLoan turns an imported record into a loan the engine can evaluate.
// Installments keep their stored contract amounts; a record with no
// installments is originated again from its principal and count.
func deriveLoan(lr LoanRecord, now time.Time) (*models.Loan, error) {
	loan := &models.Loan{
		Principal:       lr.Principal,
		OriginationDate: lr.OriginationDate,
		CreatedAt:       now,
	}
	if lr.CreatedAt != nil {
		loan.CreatedAt = *lr.CreatedAt
	}

	if len(lr.Installments) == 0 {
		if lr.OriginationDate.IsZero() {
			return nil, fmt.Errorf("no installments and no origination date")
		}
		insts, err := ledger.Originate(lr.Principal, lr.InstallmentCount, lr.OriginationDate)
		if err != nil {
			return nil, err
		}
		loan.Installments = insts
		loan.InstallmentCount = len(insts)
		return loan, nil
	}

	insts := slices.Clone(lr.Installments)
	slices.SortFunc(insts, func(a, b models.Installment) int { return a.Number - b.Number })
	for i, inst := range insts {
		if inst.Number != i+1 {
			return nil, fmt.Errorf("installment numbers must run 1..%d, found %d", len(insts), inst.Number)
		}
		if inst.DueDate.IsZero() {
			return nil, fmt.Errorf("installment %d has no due date", inst.Number)
		}
		if inst.ContractAmount.IsNegative() || inst.AmountPaid.IsNegative() {
			return nil, fmt.Errorf("installment %d has a negative amount", inst.Number)
		}
		if inst.PrincipalShare.IsZero() {
			insts[i].PrincipalShare = lr.Principal.Div(decimal.NewFromInt(int64(len(insts)))).Round(2)
		}
	}
	loan.Installments = insts
	loan.InstallmentCount = len(insts)
	if loan.OriginationDate.IsZero() {
		loan.OriginationDate = insts[0].DueDate.AddDays(-30)
	}
	return loan, nil
}

func phoneKey(phone string) string {
	return strings.TrimSpace(phone)
}

func countLoans(derived [][]*models.Loan) int {
	n := 0
	for _, loans := range derived {
		n += len(loans)
	}
	return n
}
