/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed to interact with the `accounts` and `transactions`
 * tables, including the row-locked atomic transfer that is the core of the service.
 *
 * @dependencies
 * - context, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nimbank/ledger-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new account row and returns it with its assigned id.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (user_id, bank_name, bank_account_number, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		account.UserID,
		account.BankName,
		account.BankAccountNumber,
		account.Balance,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// FindAccountByID retrieves an account from the database by its id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, user_id, bank_name, bank_account_number, balance, created_at, updated_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.UserID, &account.BankName, &account.BankAccountNumber,
		&account.Balance, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Deposit atomically credits an account and returns the updated row.
func (r *PostgresRepository) Deposit(ctx context.Context, accountID int64, amount int64) (*domain.Account, error) {
	var account domain.Account
	query := `
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id, user_id, bank_name, bank_account_number, balance, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, amount, accountID).Scan(
		&account.ID, &account.UserID, &account.BankName, &account.BankAccountNumber,
		&account.Balance, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// debitTx is the single sufficiency-checked debit primitive. It locks the account
// row, verifies the balance covers the amount, and applies the debit, all inside
// the caller's transaction. Both Withdraw and Transfer route their debits here.
func (r *PostgresRepository) debitTx(ctx context.Context, tx pgx.Tx, accountID int64, amount int64) (int64, error) {
	var balance int64
	// FOR UPDATE locks the row so the check and the debit see the same balance.
	err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	if balance < amount {
		return 0, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2", amount, accountID)
	if err != nil {
		return 0, err
	}

	return balance - amount, nil
}

// Withdraw atomically debits an account, failing with ErrInsufficientFunds when
// the balance does not cover the amount. Returns the updated account.
func (r *PostgresRepository) Withdraw(ctx context.Context, accountID int64, amount int64) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin withdraw transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := r.debitTx(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}

	var account domain.Account
	query := `SELECT id, user_id, bank_name, bank_account_number, balance, created_at, updated_at FROM accounts WHERE id = $1`
	err = tx.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.UserID, &account.BankName, &account.BankAccountNumber,
		&account.Balance, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &account, nil
}

// Transfer moves amount from the source account to the destination account as one
// atomic unit: both balance updates and the transaction record commit together or
// not at all. The sufficiency check runs under the same row locks as the debit, so
// concurrent transfers draining the same source cannot overdraw it.
func (r *PostgresRepository) Transfer(ctx context.Context, sourceID, destinationID int64, amount int64) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transfer transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both account rows in ascending id order so two opposite-direction
	// transfers between the same pair cannot deadlock. Lock order is not
	// observable to callers: missing accounts are still reported source first.
	firstID, secondID := sourceID, destinationID
	if destinationID < sourceID {
		firstID, secondID = destinationID, sourceID
	}

	locked := make(map[int64]bool, 2)
	for _, id := range []int64{firstID, secondID} {
		var accountID int64
		err := tx.QueryRow(ctx, "SELECT id FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&accountID)
		if err != nil {
			if err == pgx.ErrNoRows {
				continue
			}
			return nil, err
		}
		locked[id] = true
	}

	if !locked[sourceID] {
		return nil, ErrSourceAccountNotFound
	}
	if !locked[destinationID] {
		return nil, ErrDestinationAccountNotFound
	}

	// The source row is already locked by this transaction, so the re-select
	// inside debitTx does not block.
	if _, err := r.debitTx(ctx, tx, sourceID, amount); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2", amount, destinationID)
	if err != nil {
		return nil, err
	}

	record := &domain.Transaction{
		SourceAccountID:      sourceID,
		DestinationAccountID: destinationID,
		Amount:               amount,
	}
	insertQuery := `
		INSERT INTO transactions (source_account_id, destination_account_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insertQuery, sourceID, destinationID, amount).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// FindTransactionByID retrieves a single transaction record by its id.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	var record domain.Transaction
	query := `SELECT id, source_account_id, destination_account_id, amount, created_at FROM transactions WHERE id = $1`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&record.ID, &record.SourceAccountID, &record.DestinationAccountID, &record.Amount, &record.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListTransactions retrieves all transaction records, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	query := `
		SELECT id, source_account_id, destination_account_id, amount, created_at
		FROM transactions
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactionsByAccount retrieves all transactions touching an account
// (as source or destination), newest first.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	query := `
		SELECT id, source_account_id, destination_account_id, amount, created_at
		FROM transactions
		WHERE source_account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	for rows.Next() {
		var record domain.Transaction
		err := rows.Scan(&record.ID, &record.SourceAccountID, &record.DestinationAccountID, &record.Amount, &record.CreatedAt)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}
