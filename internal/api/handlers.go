/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http, strconv: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nimbank/ledger-service/internal/app"
	"github.com/nimbank/ledger-service/internal/domain"
	"github.com/nimbank/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps the service's error kinds to transport-level responses.
// Callers branch on kind, never on message text.
func (h *LedgerHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSourceAccountNotFound),
		errors.Is(err, store.ErrDestinationAccountNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrSameAccountTransfer):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrTransferRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// TransferHandler handles requests to move funds between two accounts.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	tx, err := h.service.Transfer(r.Context(), req.SourceAccountID, req.DestinationAccountID, req.Amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed source_account_id=%d destination_account_id=%d amount=%d err=%v",
			req.SourceAccountID, req.DestinationAccountID, req.Amount, err)
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tx)
}

// ListTransfersHandler returns all transaction records, newest first.
func (h *LedgerHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListTransactions(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// GetTransferHandler returns a single transaction record by id.
func (h *LedgerHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := parseIDParam(r, "transactionID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// CreateAccountHandler opens a new account.
func (h *LedgerHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// GetAccountHandler returns one account by id.
func (h *LedgerHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseIDParam(r, "accountID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// DepositHandler credits an account.
func (h *LedgerHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseIDParam(r, "accountID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req domain.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	account, err := h.service.Deposit(r.Context(), accountID, req.Amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=failed account_id=%d amount=%d err=%v", accountID, req.Amount, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// WithdrawHandler debits an account.
func (h *LedgerHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseIDParam(r, "accountID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req domain.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	account, err := h.service.Withdraw(r.Context(), accountID, req.Amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=withdraw outcome=failed account_id=%d amount=%d err=%v", accountID, req.Amount, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListAccountTransfersHandler returns all transactions touching one account.
func (h *LedgerHandlers) ListAccountTransfersHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseIDParam(r, "accountID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A missing account yields 404 rather than an empty history.
	if _, err := h.service.GetAccount(r.Context(), accountID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	records, err := h.service.ListAccountTransactions(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, records)
}
