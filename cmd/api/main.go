package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanbook/pkg/archive"
	"github.com/mcclellann/loanbook/pkg/backup"
	"github.com/mcclellann/loanbook/pkg/config"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/report"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
)

// Server holds the ledger instance.
type Server struct {
	ledger      *ledger.Ledger
	storage     store.Storage // Keep a reference to the storage to close it
	archive     *archive.Archive
	validate    *validator.Validate
	warnWindow  int
	dueSoonDays int
}

func NewServer(s store.Storage, cfg *config.Config) *Server {
	return &Server{
		ledger:      ledger.NewLedger(s),
		storage:     s,
		validate:    validator.New(),
		warnWindow:  cfg.WarnWindowDays,
		dueSoonDays: cfg.DueSoonDays,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	router.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	router.HandleFunc("/clients/{id}", s.getClientHandler).Methods("GET")
	router.HandleFunc("/clients/{id}", s.updateClientHandler).Methods("PUT")
	router.HandleFunc("/clients/{id}", s.deleteClientHandler).Methods("DELETE")
	router.HandleFunc("/clients/{id}/loans", s.listClientLoansHandler).Methods("GET")
	router.HandleFunc("/clients/{id}/loans", s.createLoanHandler).Methods("POST")

	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/installments/{number}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/installments/{number}/toggle", s.togglePaidHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/installments/{number}/collection", s.collectionHandler).Methods("GET")

	router.HandleFunc("/portfolio", s.portfolioHandler).Methods("GET")
	router.HandleFunc("/alerts", s.alertsHandler).Methods("GET")

	router.HandleFunc("/backup", s.exportBackupHandler).Methods("GET")
	router.HandleFunc("/backup", s.importBackupHandler).Methods("POST")
	router.HandleFunc("/backup/archive", s.archiveHandler).Methods("POST")
	router.HandleFunc("/reports/workbook", s.workbookHandler).Methods("GET")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, backup.ErrDuplicatePhone), errors.Is(err, ledger.ErrClientHasLoans):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidSchedule),
		errors.Is(err, ledger.ErrInvalidPayment),
		errors.Is(err, ledger.ErrInvalidClient),
		errors.Is(err, backup.ErrInvalidBackupFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Internal error: %v\n", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// asOf reads the optional asOf query parameter, defaulting to today.
func (s *Server) asOf(r *http.Request) (models.Date, error) {
	if v := r.URL.Query().Get("asOf"); v != "" {
		return models.ParseDate(v)
	}
	return s.ledger.Today(), nil
}

type clientRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address"`
}

func (s *Server) decodeClient(r *http.Request) (clientRequest, error) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	return req, s.validate.Struct(req)
}

// listClientsHandler serves the client directory, optionally filtered by
// ?name=, with clients holding open loans first.
func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	listings, err := s.ledger.Directory(r.URL.Query().Get("name"), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeClient(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client, err := s.ledger.CreateClient(req.Name, req.Phone, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}
	client, err := s.ledger.GetClient(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) updateClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}
	req, err := s.decodeClient(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client, err := s.ledger.GetClient(id)
	if err != nil {
		writeError(w, err)
		return
	}
	client.Name, client.Phone, client.Address = req.Name, req.Phone, req.Address
	if err := s.ledger.UpdateClient(client); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}
	if err := s.ledger.DeleteClient(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listClientLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loans, err := s.ledger.ListLoans(id)
	if err != nil {
		writeError(w, err)
		return
	}
	summaries := make([]models.LoanSummary, 0, len(loans))
	for _, l := range loans {
		summaries = append(summaries, ledger.SummarizeLoan(l, asOf))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid client ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Principal        decimal.Decimal `json:"principal"`
		InstallmentCount int             `json:"installmentCount" validate:"required,min=1"`
		OriginationDate  models.Date     `json:"originationDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.CreateLoan(clientID, req.Principal, req.InstallmentCount, req.OriginationDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := s.ledger.LoanSummary(loanID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}
	if err := s.ledger.DeleteLoan(loanID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func installmentTarget(r *http.Request) (uuid.UUID, int, error) {
	loanID, err := pathID(r)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("invalid loan ID")
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil || number < 1 {
		return uuid.Nil, 0, fmt.Errorf("invalid installment number")
	}
	return loanID, number, nil
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, number, err := installmentTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := s.ledger.RecordPayment(loanID, number, req.Amount, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) togglePaidHandler(w http.ResponseWriter, r *http.Request) {
	loanID, number, err := installmentTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := s.ledger.TogglePaid(loanID, number, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) collectionHandler(w http.ResponseWriter, r *http.Request) {
	loanID, number, err := installmentTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	notice, err := s.ledger.CollectionNotice(loanID, number, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notice)
}

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summaries, err := s.ledger.Portfolio(asOf)
	if err != nil {
		writeError(w, err)
		return
	}

	switch status := models.LoanStatus(r.URL.Query().Get("status")); status {
	case "":
	case models.LoanLate, models.LoanActive:
		summaries = ledger.FilterByStatus(summaries, status)
	default:
		http.Error(w, "status must be late or active", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		AsOf    models.Date            `json:"asOf"`
		Clients []models.ClientSummary `json:"clients"`
		Totals  models.PortfolioTotals `json:"totals"`
	}{asOf, summaries, ledger.Totals(summaries)})
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	window := s.warnWindow
	if v := r.URL.Query().Get("window"); v != "" {
		if window, err = strconv.Atoi(v); err != nil || window < 0 {
			http.Error(w, "window must be a non-negative number of days", http.StatusBadRequest)
			return
		}
	}

	alerts, err := s.ledger.Alerts(asOf, window)
	if err != nil {
		writeError(w, err)
		return
	}
	groups := ledger.GroupAlerts(alerts)
	writeJSON(w, http.StatusOK, struct {
		AsOf   models.Date        `json:"asOf"`
		Badge  int                `json:"badge"`
		Groups ledger.AlertGroups `json:"groups"`
	}{asOf, groups.Badge(), groups})
}

func (s *Server) exportBackupHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := backup.Export(s.storage, s.ledger.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", archive.ContentTypeJSON)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "loanbook-"+snap.ExportedAt.Format("2006-01-02T15-04-05")+".json"))
	backup.Encode(w, snap)
}

func (s *Server) importBackupHandler(w http.ResponseWriter, r *http.Request) {
	res, err := backup.Restore(s.storage, r.Body, s.ledger.Now())
	if err != nil {
		if errors.Is(err, backup.ErrInvalidBackupFormat) || errors.Is(err, backup.ErrDuplicatePhone) {
			writeError(w, err)
			return
		}
		// Partial merge: report what was written alongside the failure.
		log.Printf("Backup merge stopped after %+v: %v\n", res, err)
		writeJSON(w, http.StatusInternalServerError, struct {
			Error  string        `json:"error"`
			Result backup.Result `json:"result"`
		}{err.Error(), res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) reportInput(asOf models.Date) (report.Input, error) {
	clients, loansByClient, err := s.ledger.Snapshot()
	if err != nil {
		return report.Input{}, err
	}
	return report.Input{
		Clients:       clients,
		LoansByClient: loansByClient,
		AsOf:          asOf,
		DueSoonDays:   s.dueSoonDays,
		GeneratedAt:   s.ledger.Now(),
	}, nil
}

func (s *Server) workbookHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := s.asOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in, err := s.reportInput(asOf)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, in); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", archive.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "loanbook-"+asOf.String()+".xlsx"))
	w.Write(buf.Bytes())
}

func (s *Server) archiveHandler(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "Archive storage is not configured", http.StatusServiceUnavailable)
		return
	}
	now := s.ledger.Now()

	snap, err := backup.Export(s.storage, now)
	if err != nil {
		writeError(w, err)
		return
	}
	var backupBuf bytes.Buffer
	if err := backup.Encode(&backupBuf, snap); err != nil {
		writeError(w, err)
		return
	}

	in, err := s.reportInput(s.ledger.Today())
	if err != nil {
		writeError(w, err)
		return
	}
	var reportBuf bytes.Buffer
	if err := report.Write(&reportBuf, in); err != nil {
		writeError(w, err)
		return
	}

	backupKey, err := s.archive.Put(r.Context(), s.archive.ObjectKey(archive.KindBackup, "json", now), backupBuf.Bytes(), archive.ContentTypeJSON)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	reportKey, err := s.archive.Put(r.Context(), s.archive.ObjectKey(archive.KindReport, "xlsx", now), reportBuf.Bytes(), archive.ContentTypeXLSX)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"backup": backupKey, "report": reportKey})
}

// logAlerts writes the current alert badge to the log.
func (s *Server) logAlerts() {
	alerts, err := s.ledger.Alerts(s.ledger.Today(), s.warnWindow)
	if err != nil {
		log.Printf("[ALERTS][ERR] %v", err)
		return
	}
	g := ledger.GroupAlerts(alerts)
	log.Printf("[ALERTS] overdue=%d due_today=%d due_soon=%d badge=%d", len(g.Overdue), len(g.DueToday), len(g.DueSoon), g.Badge())
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, cfg)
	if cfg.ArchiveEnabled() {
		server.archive, err = archive.NewConnection(cfg.Archive())
		if err != nil {
			log.Fatalf("Failed to connect to archive storage: %v", err)
		}
		log.Printf("Archiving to bucket %q at %s", cfg.S3Bucket, cfg.S3Endpoint)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Balances are derived on every read, so the only periodic work is
	// surfacing the alert badge.
	go func() {
		ticker := time.NewTicker(cfg.AlertInterval)
		defer ticker.Stop()

		server.logAlerts()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				server.logAlerts()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-runCtx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}
}
