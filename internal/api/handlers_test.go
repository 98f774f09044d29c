package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nimbank/ledger-service/internal/app"
	"github.com/nimbank/ledger-service/internal/domain"
	"github.com/nimbank/ledger-service/internal/store"
)

// newTestServer wires the full stack (router, handlers, service) over an
// in-memory store, so handler tests exercise the same paths as production.
func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository()
	service := app.NewService(repo, nil, "")
	server := httptest.NewServer(LedgerRoutes(NewLedgerHandlers(service)))
	t.Cleanup(server.Close)
	return server, repo
}

func createTestAccount(t *testing.T, repo *store.MemoryRepository, balance int64) *domain.Account {
	t.Helper()
	account, err := repo.CreateAccount(context.Background(), &domain.Account{
		UserID:            1,
		BankName:          "Test Bank",
		BankAccountNumber: "0001112223",
		Balance:           balance,
	})
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return account
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error
}

func TestTransferHandler_Success(t *testing.T) {
	server, repo := newTestServer(t)
	source := createTestAccount(t, repo, 500)
	destination := createTestAccount(t, repo, 0)

	resp := postJSON(t, server.URL+"/transfers", domain.TransferRequest{
		SourceAccountID:      source.ID,
		DestinationAccountID: destination.ID,
		Amount:               200,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}

	var record domain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if record.SourceAccountID != source.ID || record.DestinationAccountID != destination.ID || record.Amount != 200 {
		t.Fatalf("unexpected transaction record: %+v", record)
	}

	updated, err := repo.FindAccountByID(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("failed to read source account: %v", err)
	}
	if updated.Balance != 300 {
		t.Fatalf("expected source balance 300, got %d", updated.Balance)
	}
}

func TestTransferHandler_MissingSourceIs404(t *testing.T) {
	server, repo := newTestServer(t)
	destination := createTestAccount(t, repo, 0)

	resp := postJSON(t, server.URL+"/transfers", domain.TransferRequest{
		SourceAccountID:      999,
		DestinationAccountID: destination.ID,
		Amount:               100,
	})

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.StatusCode)
	}
	if msg := decodeError(t, resp); msg != store.ErrSourceAccountNotFound.Error() {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestTransferHandler_InsufficientFundsIs402(t *testing.T) {
	server, repo := newTestServer(t)
	source := createTestAccount(t, repo, 50)
	destination := createTestAccount(t, repo, 0)

	resp := postJSON(t, server.URL+"/transfers", domain.TransferRequest{
		SourceAccountID:      source.ID,
		DestinationAccountID: destination.ID,
		Amount:               100,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected status 402, got %d", resp.StatusCode)
	}
}

func TestTransferHandler_InvalidAmountIs400(t *testing.T) {
	server, repo := newTestServer(t)
	source := createTestAccount(t, repo, 500)
	destination := createTestAccount(t, repo, 0)

	for _, amount := range []int64{0, -100} {
		resp := postJSON(t, server.URL+"/transfers", domain.TransferRequest{
			SourceAccountID:      source.ID,
			DestinationAccountID: destination.ID,
			Amount:               amount,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("amount %d: expected status 400, got %d", amount, resp.StatusCode)
		}
	}
}

func TestTransferHandler_SameAccountIs400(t *testing.T) {
	server, repo := newTestServer(t)
	account := createTestAccount(t, repo, 500)

	resp := postJSON(t, server.URL+"/transfers", domain.TransferRequest{
		SourceAccountID:      account.ID,
		DestinationAccountID: account.ID,
		Amount:               100,
	})
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestTransferHandler_MalformedBodyIs400(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/transfers", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestTransferHandler_StorageFailureIs500(t *testing.T) {
	repo := &failingRepository{}
	service := app.NewService(repo, nil, "")
	server := httptest.NewServer(LedgerRoutes(NewLedgerHandlers(service)))
	defer server.Close()

	resp := postJSON(t, server.URL+"/transfers", domain.TransferRequest{
		SourceAccountID:      1,
		DestinationAccountID: 2,
		Amount:               100,
	})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.StatusCode)
	}
	// The raw store error must not leak to clients.
	if msg := decodeError(t, resp); msg != "Internal server error" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

// failingRepository simulates a store outage on every call the transfer path makes.
type failingRepository struct {
	store.Repository
}

func (f *failingRepository) Transfer(ctx context.Context, sourceID, destinationID int64, amount int64) (*domain.Transaction, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestGetTransferHandler(t *testing.T) {
	server, repo := newTestServer(t)
	source := createTestAccount(t, repo, 500)
	destination := createTestAccount(t, repo, 0)

	record, err := repo.Transfer(context.Background(), source.ID, destination.ID, 100)
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("%s/transfers/%d", server.URL, record.ID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var fetched domain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if fetched.ID != record.ID || fetched.Amount != 100 {
		t.Fatalf("unexpected transaction: %+v", fetched)
	}
}

func TestGetTransferHandler_UnknownIDIs404(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/transfers/999")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestListTransfersHandler_EmptyIsJSONArray(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/transfers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var records []domain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("expected a JSON array, got decode error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected an empty list, got %d records", len(records))
	}
}

func TestCreateAndGetAccountHandlers(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/accounts", domain.CreateAccountRequest{
		UserID:            7,
		BankName:          "Test Bank",
		BankAccountNumber: "0001112223",
		Balance:           1000,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	var created domain.Account
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == 0 || created.Balance != 1000 {
		t.Fatalf("unexpected account: %+v", created)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/accounts/%d", server.URL, created.ID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", getResp.StatusCode)
	}
}

func TestDepositAndWithdrawHandlers(t *testing.T) {
	server, repo := newTestServer(t)
	account := createTestAccount(t, repo, 100)

	resp := postJSON(t, fmt.Sprintf("%s/accounts/%d/deposit", server.URL, account.ID), domain.AmountRequest{Amount: 50})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: expected status 200, got %d", resp.StatusCode)
	}
	var updated domain.Account
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Balance != 150 {
		t.Fatalf("expected balance 150 after deposit, got %d", updated.Balance)
	}

	wResp := postJSON(t, fmt.Sprintf("%s/accounts/%d/withdraw", server.URL, account.ID), domain.AmountRequest{Amount: 200})
	wResp.Body.Close()
	if wResp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("withdraw: expected status 402, got %d", wResp.StatusCode)
	}
}

func TestListAccountTransfersHandler(t *testing.T) {
	server, repo := newTestServer(t)
	a := createTestAccount(t, repo, 500)
	b := createTestAccount(t, repo, 500)

	if _, err := repo.Transfer(context.Background(), a.ID, b.ID, 100); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("%s/accounts/%d/transfers", server.URL, a.ID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var records []domain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	// Unknown account yields 404, not an empty history.
	missingResp, err := http.Get(server.URL + "/accounts/999/transfers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown account, got %d", missingResp.StatusCode)
	}
}

func TestParseIDParam_RejectsBadIDs(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/accounts/abc", "/accounts/0", "/accounts/-3"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}
