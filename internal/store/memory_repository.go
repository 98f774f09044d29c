/**
 * @description
 * This file provides an in-memory implementation of the `Repository` interface.
 * It backs the unit tests and small single-node deployments where PostgreSQL is
 * not available. Atomicity is provided by per-account mutexes acquired in
 * ascending id order, so the same invariants hold as for the row-locked
 * PostgreSQL implementation: checks and writes for one operation are isolated
 * from concurrent operations on the same accounts, while operations on disjoint
 * account pairs proceed independently.
 *
 * Locking model: the repository-wide `mu` guards only the maps, the id
 * counters, and the transaction log, and is never held across an account's
 * check-and-mutate sequence. Balance reads and writes happen under the
 * per-account mutexes alone, mirroring row locks.
 *
 * @dependencies
 * - context, sync, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"sync"
	"time"

	"github.com/nimbank/ledger-service/internal/domain"
)

// MemoryRepository is a concrete implementation of the Repository interface
// backed by process memory.
type MemoryRepository struct {
	mu           sync.Mutex // guards accounts, transactions, id counters, and lockMap; never held across a balance mutation
	accounts     map[int64]*domain.Account
	transactions []domain.Transaction
	nextAccount  int64
	nextTx       int64

	lockMap map[int64]*sync.Mutex // one mutex per account id

	// transferFault is a test hook invoked between the debit and the credit of a
	// transfer. When it returns an error the debit is rolled back and nothing is
	// recorded, mirroring a mid-unit storage failure.
	transferFault func() error
}

// NewMemoryRepository creates a new empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[int64]*domain.Account),
		lockMap:  make(map[int64]*sync.Mutex),
	}
}

func (m *MemoryRepository) accountLock(accountID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.lockMap[accountID]; !exists {
		m.lockMap[accountID] = &sync.Mutex{}
	}
	return m.lockMap[accountID]
}

// lookupAccount resolves the shared account pointer. Accounts are never removed
// from the map, so the pointer stays valid after mu is released; the caller must
// hold the account's lock before touching its fields.
func (m *MemoryRepository) lookupAccount(accountID int64) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountID]
}

// CreateAccount stores a new account and assigns its id.
func (m *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAccount++
	now := time.Now().UTC()
	stored := &domain.Account{
		ID:                m.nextAccount,
		UserID:            account.UserID,
		BankName:          account.BankName,
		BankAccountNumber: account.BankAccountNumber,
		Balance:           account.Balance,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.accounts[stored.ID] = stored

	copied := *stored
	return &copied, nil
}

// FindAccountByID returns a copy of the account so callers cannot mutate
// internal state. The account lock is taken so a reader never observes a
// half-applied transfer.
func (m *MemoryRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account := m.lookupAccount(accountID)
	if account == nil {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

// Deposit credits an account under its lock.
func (m *MemoryRepository) Deposit(ctx context.Context, accountID int64, amount int64) (*domain.Account, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account := m.lookupAccount(accountID)
	if account == nil {
		return nil, ErrAccountNotFound
	}
	account.Balance += amount
	account.UpdatedAt = time.Now().UTC()

	copied := *account
	return &copied, nil
}

// Withdraw debits an account under its lock, checking sufficiency first. The
// check and the debit run inside the same critical section, so a concurrent
// withdrawal cannot drive the balance negative.
func (m *MemoryRepository) Withdraw(ctx context.Context, accountID int64, amount int64) (*domain.Account, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account := m.lookupAccount(accountID)
	if account == nil {
		return nil, ErrAccountNotFound
	}
	if account.Balance < amount {
		return nil, ErrInsufficientFunds
	}
	account.Balance -= amount
	account.UpdatedAt = time.Now().UTC()

	copied := *account
	return &copied, nil
}

// Transfer moves amount between two accounts as one unit. Both account locks are
// held for the whole lookup-check-debit-credit-record sequence; they are acquired
// in ascending id order to avoid deadlocks between opposite-direction transfers.
// Transfers over disjoint account pairs run concurrently.
func (m *MemoryRepository) Transfer(ctx context.Context, sourceID, destinationID int64, amount int64) (*domain.Transaction, error) {
	firstID, secondID := sourceID, destinationID
	if destinationID < sourceID {
		firstID, secondID = destinationID, sourceID
	}

	firstLock := m.accountLock(firstID)
	firstLock.Lock()
	defer firstLock.Unlock()
	if secondID != firstID {
		secondLock := m.accountLock(secondID)
		secondLock.Lock()
		defer secondLock.Unlock()
	}

	source := m.lookupAccount(sourceID)
	destination := m.lookupAccount(destinationID)

	// Source is checked before destination; callers rely on this ordering when
	// both accounts are missing.
	if source == nil {
		return nil, ErrSourceAccountNotFound
	}
	if destination == nil {
		return nil, ErrDestinationAccountNotFound
	}
	if source.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	source.Balance -= amount

	if m.transferFault != nil {
		if err := m.transferFault(); err != nil {
			source.Balance += amount
			return nil, err
		}
	}

	// Timestamps are applied only once the unit can no longer fail, so an
	// aborted transfer leaves no observable write at all.
	now := time.Now().UTC()
	source.UpdatedAt = now
	destination.Balance += amount
	destination.UpdatedAt = now

	m.mu.Lock()
	m.nextTx++
	record := domain.Transaction{
		ID:                   m.nextTx,
		SourceAccountID:      sourceID,
		DestinationAccountID: destinationID,
		Amount:               amount,
		CreatedAt:            now,
	}
	m.transactions = append(m.transactions, record)
	m.mu.Unlock()

	copied := record
	return &copied, nil
}

// FindTransactionByID retrieves a single transaction record by its id.
func (m *MemoryRepository) FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range m.transactions {
		if record.ID == transactionID {
			copied := record
			return &copied, nil
		}
	}
	return nil, ErrTransactionNotFound
}

// ListTransactions returns a copy of all transaction records, newest first.
func (m *MemoryRepository) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]domain.Transaction, 0, len(m.transactions))
	for i := len(m.transactions) - 1; i >= 0; i-- {
		copied = append(copied, m.transactions[i])
	}
	return copied, nil
}

// ListTransactionsByAccount returns all transactions touching an account
// (as source or destination), newest first.
func (m *MemoryRepository) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		record := m.transactions[i]
		if record.SourceAccountID == accountID || record.DestinationAccountID == accountID {
			result = append(result, record)
		}
	}
	return result, nil
}

// Compile-time check that MemoryRepository satisfies the Repository interface.
var _ Repository = (*MemoryRepository)(nil)
