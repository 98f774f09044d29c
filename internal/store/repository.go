/**
 * @description
 * This file defines the `Repository` interface, the contract the ledger-service
 * depends on for account and transaction storage. Defining an interface decouples
 * the business logic from the concrete backend (PostgreSQL in production, the
 * in-memory store in tests and small deployments) and keeps both swappable.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/nimbank/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound            = errors.New("account not found")
	ErrSourceAccountNotFound      = errors.New("source account not found")
	ErrDestinationAccountNotFound = errors.New("destination account not found")
	ErrInsufficientFunds          = errors.New("insufficient funds")
	ErrTransactionNotFound        = errors.New("transaction not found")
)

// Repository defines the set of methods for interacting with the ledger store.
//
// Every balance-mutating method is one atomic unit: it either commits all of its
// reads and writes or none of them, with isolation from concurrent units touching
// the same accounts. Transfer performs its lookups and the sufficiency check
// inside the same unit as the debit and credit, so a concurrent drain of the
// source cannot drive the balance negative.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error)
	Deposit(ctx context.Context, accountID int64, amount int64) (*domain.Account, error)
	Withdraw(ctx context.Context, accountID int64, amount int64) (*domain.Account, error)

	// Transfer executes the whole movement as one unit: look up source, look up
	// destination (in that order), check source sufficiency, debit, credit, and
	// insert the transaction record. On any failure nothing is written.
	Transfer(ctx context.Context, sourceID, destinationID int64, amount int64) (*domain.Transaction, error)

	// Transaction history methods
	FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error)
}
