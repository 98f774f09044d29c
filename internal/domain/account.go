/**
 * @description
 * This file defines the account domain model for the ledger-service along with the
 * request payloads accepted by the account endpoints.
 *
 * @notes
 * - Balances are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - Account identifiers are assigned by the store (BIGSERIAL); the service never
 *   generates them.
 */

package domain

import "time"

// Account is a balance-holding entity tied to one user. It maps directly to the
// `accounts` table. The balance is never negative; every debit path checks
// sufficiency inside the same atomic unit that applies it.
type Account struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	BankName          string    `json:"bank_name"`
	BankAccountNumber string    `json:"bank_account_number"`
	Balance           int64     `json:"balance"` // smallest currency unit
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CreateAccountRequest is the DTO for opening a new account.
type CreateAccountRequest struct {
	UserID            int64  `json:"user_id"`
	BankName          string `json:"bank_name"`
	BankAccountNumber string `json:"bank_account_number"`
	Balance           int64  `json:"balance"` // opening balance, smallest currency unit
}

// AmountRequest is the DTO shared by the deposit and withdraw endpoints.
type AmountRequest struct {
	Amount int64 `json:"amount"` // smallest currency unit
}
