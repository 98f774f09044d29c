/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates all money movement operations: it re-validates the inputs it
 * is the last line of defense for, delegates each atomic unit to the injected
 * ledger store, and publishes events to RabbitMQ after a successful commit.
 *
 * Key features:
 * - Implements the main use cases: transfers, deposits, and withdrawals.
 * - Core-enforces the transfer preconditions (positive amount, distinct accounts)
 *   before any store call, so a misbehaving caller cannot corrupt balances.
 * - Surfaces failures as distinct error kinds callers can branch on; unexpected
 *   store failures are wrapped in *StorageError with the cause preserved.
 * - Never retries a failed unit of work; retries are the caller's decision.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For event identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nimbank/ledger-service/internal/domain"
	"github.com/nimbank/ledger-service/internal/store"
	"github.com/nimbank/ledger-service/pkg/rabbitmq"
)

var (
	// ErrInvalidAmount rejects any money movement with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrSameAccountTransfer rejects a transfer whose source and destination are the same account.
	ErrSameAccountTransfer = errors.New("source and destination accounts must differ")
	// ErrTransferRateLimited rejects a transfer when the source account exceeds its configured rate.
	ErrTransferRateLimited = errors.New("transfer rate limit exceeded")
)

// StorageError wraps an unexpected failure from the ledger store (connectivity,
// timeout, aborted unit of work). The underlying cause is preserved for
// diagnostics via Unwrap but is not part of the error contract callers branch on.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger store failure: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// RateLimiter constrains how often a source account may initiate transfers
// within a window.
type RateLimiter interface {
	ConsumeTransferSlot(ctx context.Context, sourceAccountID int64, limit int, window time.Duration) (count int, retryAfter time.Duration, err error)
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	eventExchange string

	rateLimiter        RateLimiter
	transferRateLimit  int
	transferRateWindow time.Duration
}

// NewService creates a new ledger service instance. The producer may be nil when
// event publication is disabled.
func NewService(repo store.Repository, producer rabbitmq.Publisher, eventExchange string) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		eventExchange: eventExchange,
	}
}

// SetTransferRateLimiter enables per-source-account rate limiting on transfers.
func (s *Service) SetTransferRateLimiter(limiter RateLimiter, limitPerMinute int) {
	s.rateLimiter = limiter
	s.transferRateLimit = limitPerMinute
	s.transferRateWindow = time.Minute
}

// surfaceStoreError passes through the enumerated error kinds and wraps anything
// else as a StorageError so callers never see raw driver errors.
func surfaceStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrSourceAccountNotFound),
		errors.Is(err, store.ErrDestinationAccountNotFound),
		errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrTransactionNotFound):
		return err
	default:
		return &StorageError{Err: err}
	}
}

// Transfer moves a positive amount from one account to another as a single
// all-or-nothing operation and returns the created transaction record.
//
// The checks the caller's validation layer already ran are re-run here for the
// ones that guard against corruption: the amount must be positive and the two
// accounts must differ. Everything else (lookups, sufficiency, debit, credit,
// record insert) happens inside one atomic store unit.
func (s *Service) Transfer(ctx context.Context, sourceID, destinationID int64, amount int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if sourceID == destinationID {
		return nil, ErrSameAccountTransfer
	}

	if s.rateLimiter != nil && s.transferRateLimit > 0 {
		count, _, err := s.rateLimiter.ConsumeTransferSlot(ctx, sourceID, s.transferRateLimit, s.transferRateWindow)
		if err != nil {
			// The limiter is advisory; a limiter outage must not block transfers.
			log.Printf("level=warn component=ledger msg=\"rate limiter unavailable; allowing transfer\" source_account_id=%d err=%v", sourceID, err)
		} else if count > s.transferRateLimit {
			return nil, ErrTransferRateLimited
		}
	}

	record, err := s.repo.Transfer(ctx, sourceID, destinationID, amount)
	if err != nil {
		return nil, surfaceStoreError(err)
	}

	log.Printf("level=info component=ledger op=transfer outcome=committed transaction_id=%d source_account_id=%d destination_account_id=%d amount=%d",
		record.ID, sourceID, destinationID, amount)

	s.publish(ctx, "transfer.completed", rabbitmq.TransferEvent{
		EventID:              uuid.New(),
		TransactionID:        record.ID,
		SourceAccountID:      record.SourceAccountID,
		DestinationAccountID: record.DestinationAccountID,
		Amount:               record.Amount,
		Timestamp:            record.CreatedAt,
	})

	return record, nil
}

// Deposit credits a positive amount to an account and returns the updated account.
func (s *Service) Deposit(ctx context.Context, accountID int64, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.Deposit(ctx, accountID, amount)
	if err != nil {
		return nil, surfaceStoreError(err)
	}

	log.Printf("level=info component=ledger op=deposit outcome=committed account_id=%d amount=%d balance=%d", accountID, amount, account.Balance)

	s.publish(ctx, "account.deposited", rabbitmq.BalanceEvent{
		EventID:   uuid.New(),
		AccountID: account.ID,
		Amount:    amount,
		Balance:   account.Balance,
		Timestamp: account.UpdatedAt,
	})

	return account, nil
}

// Withdraw debits a positive amount from an account and returns the updated
// account. It uses the same sufficiency-checked debit primitive as Transfer, so
// the non-negative balance invariant holds on both paths.
func (s *Service) Withdraw(ctx context.Context, accountID int64, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.Withdraw(ctx, accountID, amount)
	if err != nil {
		return nil, surfaceStoreError(err)
	}

	log.Printf("level=info component=ledger op=withdraw outcome=committed account_id=%d amount=%d balance=%d", accountID, amount, account.Balance)

	s.publish(ctx, "account.withdrawn", rabbitmq.BalanceEvent{
		EventID:   uuid.New(),
		AccountID: account.ID,
		Amount:    amount,
		Balance:   account.Balance,
		Timestamp: account.UpdatedAt,
	})

	return account, nil
}

// CreateAccount opens a new account. The opening balance may be zero but not negative.
func (s *Service) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	if req.Balance < 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.CreateAccount(ctx, &domain.Account{
		UserID:            req.UserID,
		BankName:          req.BankName,
		BankAccountNumber: req.BankAccountNumber,
		Balance:           req.Balance,
	})
	if err != nil {
		return nil, surfaceStoreError(err)
	}
	return account, nil
}

// GetAccount retrieves one account by id.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, surfaceStoreError(err)
	}
	return account, nil
}

// GetTransaction retrieves one transaction record by id.
func (s *Service) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	record, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, surfaceStoreError(err)
	}
	return record, nil
}

// ListTransactions retrieves all transaction records, newest first.
func (s *Service) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	records, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return nil, surfaceStoreError(err)
	}
	return records, nil
}

// ListAccountTransactions retrieves all transactions touching one account, newest first.
func (s *Service) ListAccountTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	records, err := s.repo.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, surfaceStoreError(err)
	}
	return records, nil
}

// publish sends an event after a successful commit. Publication failures are
// logged and swallowed: the money has already moved.
func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, s.eventExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}
