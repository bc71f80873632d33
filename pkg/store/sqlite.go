package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the tables if they don't already exist.
// Decimals and calendar dates are TEXT so no precision or day is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		registered_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clients_phone ON clients(phone);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		origination_date TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(client_id) REFERENCES clients(id)
	);
	CREATE INDEX IF NOT EXISTS idx_loans_client ON loans(client_id);
	CREATE TABLE IF NOT EXISTS installments (
		loan_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		principal_share TEXT NOT NULL,
		contract_amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY(loan_id, number),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateClient inserts a new client.
func (s *SQLiteStore) CreateClient(client *models.Client) error {
	_, err := s.db.Exec(
		`INSERT INTO clients (id, name, phone, address, registered_at) VALUES (?, ?, ?, ?, ?)`,
		client.ID.String(), client.Name, client.Phone, client.Address, client.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by its ID.
func (s *SQLiteStore) GetClient(id uuid.UUID) (*models.Client, error) {
	row := s.db.QueryRow(`SELECT id, name, phone, address, registered_at FROM clients WHERE id = ?`, id.String())
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// UpdateClient updates the contact fields of a client.
func (s *SQLiteStore) UpdateClient(client *models.Client) error {
	result, err := s.db.Exec(
		`UPDATE clients SET name = ?, phone = ?, address = ? WHERE id = ?`,
		client.Name, client.Phone, client.Address, client.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return expectOneRow(result, "client")
}

// DeleteClient removes a client together with all of its loans.
func (s *SQLiteStore) DeleteClient(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM installments WHERE loan_id IN (SELECT id FROM loans WHERE client_id = ?)`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete client installments: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM loans WHERE client_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete client loans: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM clients WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if err := expectOneRow(result, "client"); err != nil {
		return err
	}

	return tx.Commit()
}

// ListClients retrieves all clients ordered by name.
func (s *SQLiteStore) ListClients() ([]*models.Client, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, address, registered_at FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return clients, nil
}

// CreateLoan inserts a loan and its installment schedule within a transaction.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (id, client_id, principal, installment_count, origination_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.ClientID.String(), loan.Principal, loan.InstallmentCount, loan.OriginationDate, loan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	for _, inst := range loan.Installments {
		_, err = tx.Exec(
			`INSERT INTO installments (loan_id, number, principal_share, contract_amount, due_date, amount_paid)
			VALUES (?, ?, ?, ?, ?, ?)`,
			loan.ID.String(), inst.Number, inst.PrincipalShare, inst.ContractAmount, inst.DueDate, inst.AmountPaid,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", inst.Number, err)
		}
	}

	return tx.Commit()
}

// GetLoan retrieves a loan and its installments by the loan ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT id, client_id, principal, installment_count, origination_date, created_at FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	if err := s.loadInstallments(loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// UpdateLoan persists the amount paid on each installment. Nothing else about
// a loan changes after origination.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM loans WHERE id = ?`, loan.ID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check loan: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("loan %w", ErrNotFound)
	}

	for _, inst := range loan.Installments {
		result, err := tx.Exec(
			`UPDATE installments SET amount_paid = ? WHERE loan_id = ? AND number = ?`,
			inst.AmountPaid, loan.ID.String(), inst.Number,
		)
		if err != nil {
			return fmt.Errorf("failed to update installment %d: %w", inst.Number, err)
		}
		if err := expectOneRow(result, fmt.Sprintf("installment %d", inst.Number)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteLoan removes a loan and its installments from the database within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated installments: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if err := expectOneRow(result, "loan"); err != nil {
		return err
	}

	return tx.Commit()
}

// ListLoans retrieves all loans of a client, oldest first.
func (s *SQLiteStore) ListLoans(clientID uuid.UUID) ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT id, client_id, principal, installment_count, origination_date, created_at FROM loans WHERE client_id = ? ORDER BY origination_date, created_at`, clientID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for client %s: %w", clientID, err)
	}

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	rows.Close()

	for _, loan := range loans {
		if err := s.loadInstallments(loan); err != nil {
			return nil, err
		}
	}
	return loans, nil
}

func (s *SQLiteStore) loadInstallments(loan *models.Loan) error {
	rows, err := s.db.Query(`SELECT number, principal_share, contract_amount, due_date, amount_paid FROM installments WHERE loan_id = ? ORDER BY number ASC`, loan.ID.String())
	if err != nil {
		return fmt.Errorf("failed to get installments for loan %s: %w", loan.ID, err)
	}
	defer rows.Close()

	loan.Installments = make([]models.Installment, 0, loan.InstallmentCount)
	for rows.Next() {
		var inst models.Installment
		if err := rows.Scan(&inst.Number, &inst.PrincipalShare, &inst.ContractAmount, &inst.DueDate, &inst.AmountPaid); err != nil {
			return fmt.Errorf("failed to scan installment row: %w", err)
		}
		loan.Installments = append(loan.Installments, inst)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during rows iteration for loan installments: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var client models.Client
	var idStr string
	if err := row.Scan(&idStr, &client.Name, &client.Phone, &client.Address, &client.RegisteredAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("bad client id %q: %w", idStr, err)
	}
	client.ID = id
	return &client, nil
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, clientIDStr string
	if err := row.Scan(&idStr, &clientIDStr, &loan.Principal, &loan.InstallmentCount, &loan.OriginationDate, &loan.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if loan.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("bad loan id %q: %w", idStr, err)
	}
	if loan.ClientID, err = uuid.Parse(clientIDStr); err != nil {
		return nil, fmt.Errorf("bad client id %q: %w", clientIDStr, err)
	}
	return &loan, nil
}

func expectOneRow(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
