package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanbook/pkg/archive"
	"github.com/mcclellann/loanbook/pkg/backup"
	"github.com/mcclellann/loanbook/pkg/config"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func setupTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	server := NewServer(s, &config.Config{WarnWindowDays: 3, DueSoonDays: 7})
	return server, server.routes()
}

func do(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// seedLoan creates a client with a 1000.00 loan in two installments of 800.00
// due 2024-01-31 and 2024-03-01.
func seedLoan(t *testing.T, router *mux.Router) (models.Client, models.Loan) {
	t.Helper()
	rr := do(t, router, "POST", "/clients", map[string]string{
		"name":    "Maria Souza",
		"phone":   "11999990000",
		"address": "Rua A, 10",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating client, got %d: %s", rr.Code, rr.Body.String())
	}
	var client models.Client
	json.Unmarshal(rr.Body.Bytes(), &client)

	rr = do(t, router, "POST", "/clients/"+client.ID.String()+"/loans", map[string]any{
		"principal":        "1000",
		"installmentCount": 2,
		"originationDate":  "2024-01-01",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating loan, got %d: %s", rr.Code, rr.Body.String())
	}
	var loan models.Loan
	json.Unmarshal(rr.Body.Bytes(), &loan)
	return client, loan
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	_, router := setupTestServer(t)
	client, loan := seedLoan(t, router)

	if loan.ClientID != client.ID {
		t.Errorf("Expected loan for client %s, got %s", client.ID, loan.ClientID)
	}
	if len(loan.Installments) != 2 {
		t.Fatalf("Expected 2 installments, got %d", len(loan.Installments))
	}
	if !loan.Installments[0].ContractAmount.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Expected contract amount 800, got %s", loan.Installments[0].ContractAmount)
	}
	if got := loan.Installments[1].DueDate.String(); got != "2024-03-01" {
		t.Errorf("Expected second due date 2024-03-01, got %s", got)
	}

	rr := do(t, router, "GET", "/loans/"+loan.ID.String()+"?asOf=2024-02-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var summary models.LoanSummary
	json.Unmarshal(rr.Body.Bytes(), &summary)

	if summary.Status != models.LoanLate {
		t.Errorf("Expected status late, got %s", summary.Status)
	}
	if summary.MaxDaysLate != 5 {
		t.Errorf("Expected 5 days late, got %d", summary.MaxDaysLate)
	}
	if !summary.OutstandingBalance.Equal(decimal.NewFromInt(1640)) {
		t.Errorf("Expected outstanding 1640, got %s", summary.OutstandingBalance)
	}
}

func TestAPI_CreateLoanValidation(t *testing.T) {
	_, router := setupTestServer(t)
	client, _ := seedLoan(t, router)
	path := "/clients/" + client.ID.String() + "/loans"

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"zero principal", map[string]any{"principal": "0", "installmentCount": 1}, http.StatusBadRequest},
		{"missing count", map[string]any{"principal": "100"}, http.StatusBadRequest},
		{"negative count", map[string]any{"principal": "100", "installmentCount": -2}, http.StatusBadRequest},
		{"count above rate tiers", map[string]any{"principal": "900", "installmentCount": 3}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, router, "POST", path, tt.body); rr.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rr.Code)
			}
		})
	}

	rr := do(t, router, "POST", "/clients/"+uuid.New().String()+"/loans", map[string]any{"principal": "100", "installmentCount": 1})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown client, got %d", rr.Code)
	}
}

func TestAPI_RecordPayment(t *testing.T) {
	_, router := setupTestServer(t)
	_, loan := seedLoan(t, router)
	base := "/loans/" + loan.ID.String() + "/installments/"

	rr := do(t, router, "POST", base+"1/payments?asOf=2024-02-05", map[string]string{"amount": "840"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var b models.Breakdown
	json.Unmarshal(rr.Body.Bytes(), &b)
	if b.Status != models.InstallmentPaid {
		t.Errorf("Expected installment paid, got %s", b.Status)
	}
	if !b.OutstandingBalance.IsZero() {
		t.Errorf("Expected zero outstanding, got %s", b.OutstandingBalance)
	}

	rr = do(t, router, "POST", base+"2/payments?asOf=2024-02-05", map[string]string{"amount": "1000"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for overpayment, got %d", rr.Code)
	}

	rr = do(t, router, "POST", base+"9/payments", map[string]string{"amount": "10"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown installment, got %d", rr.Code)
	}

	rr = do(t, router, "GET", "/portfolio?asOf=2024-02-05&status=late", nil)
	var portfolio struct {
		Clients []models.ClientSummary `json:"clients"`
		Totals  models.PortfolioTotals `json:"totals"`
	}
	json.Unmarshal(rr.Body.Bytes(), &portfolio)
	if len(portfolio.Clients) != 0 {
		t.Errorf("Expected no late clients after payment, got %d", len(portfolio.Clients))
	}

	rr = do(t, router, "GET", "/portfolio?asOf=2024-02-05&status=active", nil)
	json.Unmarshal(rr.Body.Bytes(), &portfolio)
	if len(portfolio.Clients) != 1 {
		t.Fatalf("Expected 1 active client, got %d", len(portfolio.Clients))
	}
	if !portfolio.Totals.TotalOutstanding.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Expected outstanding 800, got %s", portfolio.Totals.TotalOutstanding)
	}

	if rr := do(t, router, "GET", "/portfolio?status=closed", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown filter, got %d", rr.Code)
	}
}

func TestAPI_TogglePaid(t *testing.T) {
	_, router := setupTestServer(t)
	_, loan := seedLoan(t, router)
	path := "/loans/" + loan.ID.String() + "/installments/2/toggle?asOf=2024-02-05"

	var b models.Breakdown
	rr := do(t, router, "POST", path, nil)
	json.Unmarshal(rr.Body.Bytes(), &b)
	if b.Status != models.InstallmentPaid {
		t.Errorf("Expected paid after first toggle, got %s", b.Status)
	}

	rr = do(t, router, "POST", path, nil)
	json.Unmarshal(rr.Body.Bytes(), &b)
	if b.Status != models.InstallmentOpen || !b.AmountPaid.IsZero() {
		t.Errorf("Expected open and unpaid after second toggle, got %s paid %s", b.Status, b.AmountPaid)
	}
}

func TestAPI_Alerts(t *testing.T) {
	_, router := setupTestServer(t)
	_, loan := seedLoan(t, router)
	do(t, router, "POST", "/loans/"+loan.ID.String()+"/installments/1/payments?asOf=2024-02-05", map[string]string{"amount": "840"})

	rr := do(t, router, "GET", "/alerts?asOf=2024-02-27", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Badge  int `json:"badge"`
		Groups struct {
			Overdue  []models.AlertEntry `json:"overdue"`
			DueToday []models.AlertEntry `json:"dueToday"`
			DueSoon  []models.AlertEntry `json:"dueSoon"`
		} `json:"groups"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)

	// Late interest keeps accruing on the first installment after it was settled.
	if len(resp.Groups.Overdue) != 1 || resp.Groups.Overdue[0].InstallmentNumber != 1 {
		t.Errorf("Expected installment 1 overdue, got %+v", resp.Groups.Overdue)
	}
	if len(resp.Groups.DueSoon) != 1 || resp.Groups.DueSoon[0].DaysRemaining != 3 {
		t.Errorf("Expected installment 2 due in 3 days, got %+v", resp.Groups.DueSoon)
	}
	if resp.Badge != 2 {
		t.Errorf("Expected badge 2, got %d", resp.Badge)
	}

	rr = do(t, router, "GET", "/alerts?asOf=2024-02-27&window=2", nil)
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Badge != 1 {
		t.Errorf("Expected badge 1 with a 2 day window, got %d", resp.Badge)
	}
}

func TestAPI_BackupRoundTrip(t *testing.T) {
	_, router := setupTestServer(t)
	seedLoan(t, router)

	rr := do(t, router, "GET", "/backup", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	exported := rr.Body.Bytes()

	_, target := setupTestServer(t)
	req := httptest.NewRequest("POST", "/backup", bytes.NewReader(exported))
	rr = httptest.NewRecorder()
	target.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 importing, got %d: %s", rr.Code, rr.Body.String())
	}
	var res backup.Result
	json.Unmarshal(rr.Body.Bytes(), &res)
	if res.ClientsCreated != 1 || res.LoansInserted != 1 {
		t.Errorf("Expected 1 client and 1 loan, got %+v", res)
	}

	req = httptest.NewRequest("POST", "/backup", bytes.NewBufferString(`{"clients": "nope"}`))
	rr = httptest.NewRecorder()
	target.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed backup, got %d", rr.Code)
	}
}

func TestAPI_Workbook(t *testing.T) {
	_, router := setupTestServer(t)
	seedLoan(t, router)

	rr := do(t, router, "GET", "/reports/workbook?asOf=2024-02-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != archive.ContentTypeXLSX {
		t.Errorf("Expected content type %s, got %s", archive.ContentTypeXLSX, ct)
	}

	f, err := excelize.OpenReader(rr.Body)
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer f.Close()
	if got := len(f.GetSheetList()); got != 5 {
		t.Errorf("Expected 5 sheets, got %d", got)
	}
}

func TestAPI_ArchiveDisabled(t *testing.T) {
	_, router := setupTestServer(t)
	if rr := do(t, router, "POST", "/backup/archive", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rr.Code)
	}
}

func TestAPI_DeleteClientWithLoansRefused(t *testing.T) {
	_, router := setupTestServer(t)
	client, loan := seedLoan(t, router)

	if rr := do(t, router, "DELETE", "/clients/"+client.ID.String(), nil); rr.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", rr.Code)
	}
	if rr := do(t, router, "GET", "/loans/"+loan.ID.String(), nil); rr.Code != http.StatusOK {
		t.Errorf("Expected loan kept, got status %d", rr.Code)
	}

	if rr := do(t, router, "DELETE", "/loans/"+loan.ID.String(), nil); rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204 deleting loan, got %d", rr.Code)
	}
	if rr := do(t, router, "DELETE", "/clients/"+client.ID.String(), nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 once loans are gone, got %d", rr.Code)
	}
	if rr := do(t, router, "GET", "/clients/"+client.ID.String(), nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for removed client, got %d", rr.Code)
	}
	if rr := do(t, router, "GET", "/clients/not-a-uuid", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad ID, got %d", rr.Code)
	}
}

func TestAPI_ClientDirectory(t *testing.T) {
	_, router := setupTestServer(t)
	seedLoan(t, router)
	do(t, router, "POST", "/clients", map[string]string{"name": "Ana Paula", "phone": "1"})
	do(t, router, "POST", "/clients", map[string]string{"name": "Bruno", "phone": "2"})

	rr := do(t, router, "GET", "/clients?asOf=2024-02-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var listings []models.ClientListing
	json.Unmarshal(rr.Body.Bytes(), &listings)
	if len(listings) != 3 {
		t.Fatalf("Expected 3 clients, got %d", len(listings))
	}
	if listings[0].Name != "Maria Souza" || !listings[0].HasActiveLoan {
		t.Errorf("Expected client with an open loan first, got %+v", listings[0])
	}
	if listings[1].Name != "Ana Paula" || listings[2].Name != "Bruno" {
		t.Errorf("Expected the rest alphabetical, got %s, %s", listings[1].Name, listings[2].Name)
	}

	rr = do(t, router, "GET", "/clients?name=sou", nil)
	json.Unmarshal(rr.Body.Bytes(), &listings)
	if len(listings) != 1 || listings[0].Name != "Maria Souza" {
		t.Errorf("Expected only Maria Souza for name=sou, got %+v", listings)
	}
}

func TestAPI_CollectionNotice(t *testing.T) {
	_, router := setupTestServer(t)
	client, loan := seedLoan(t, router)

	rr := do(t, router, "GET", "/loans/"+loan.ID.String()+"/installments/1/collection?asOf=2024-02-05", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var notice models.CollectionNotice
	json.Unmarshal(rr.Body.Bytes(), &notice)
	if notice.ClientPhone != client.Phone {
		t.Errorf("Expected phone %s, got %s", client.Phone, notice.ClientPhone)
	}
	if !strings.Contains(notice.Message, "Amount: 840.00") || !strings.Contains(notice.Message, "Days late: 5") {
		t.Errorf("Unexpected message:\n%s", notice.Message)
	}
	if strings.Contains(notice.Message, "Already paid") {
		t.Errorf("Expected no paid line before any payment:\n%s", notice.Message)
	}

	rr = do(t, router, "GET", "/loans/"+loan.ID.String()+"/installments/5/collection", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown installment, got %d", rr.Code)
	}
}

func TestAPI_ConcurrentPaymentsAreNotLost(t *testing.T) {
	_, router := setupTestServer(t)
	_, loan := seedLoan(t, router)
	path := "/loans/" + loan.ID.String() + "/installments/1/payments?asOf=2024-01-10"

	var wg sync.WaitGroup
	codes := make(chan int, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("POST", path, strings.NewReader(`{"amount": "100"}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			codes <- rr.Code
		}()
	}
	wg.Wait()
	close(codes)

	accepted := 0
	for code := range codes {
		if code == http.StatusCreated {
			accepted++
		}
	}
	if accepted != 8 {
		t.Errorf("Expected 8 payments accepted against 800.00, got %d", accepted)
	}

	rr := do(t, router, "GET", "/loans/"+loan.ID.String()+"?asOf=2024-01-10", nil)
	var summary models.LoanSummary
	json.Unmarshal(rr.Body.Bytes(), &summary)
	if !summary.TotalPaid.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Expected 800 paid, got %s", summary.TotalPaid)
	}
}

func TestAPI_ExportUsesLedgerClock(t *testing.T) {
	server, router := setupTestServer(t)
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	server.ledger.SetClock(func() time.Time { return stamp })

	rr := do(t, router, "GET", "/backup", nil)
	var snap backup.Snapshot
	json.Unmarshal(rr.Body.Bytes(), &snap)
	if !snap.ExportedAt.Equal(stamp) {
		t.Errorf("Expected exportedAt %s, got %s", stamp, snap.ExportedAt)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "2024-05-06T07-08-09") {
		t.Errorf("Expected file name stamped from the ledger clock, got %q", cd)
	}
}
