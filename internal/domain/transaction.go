/**
 * @description
 * This file defines the transaction domain model: the immutable record of one
 * completed transfer between two accounts, plus the transfer request DTO.
 */

package domain

import "time"

// Transaction is the immutable ledger record of one completed transfer. It is
// written exactly once, as the final step of a successful transfer, and has no
// update or delete path anywhere in the service.
type Transaction struct {
	ID                   int64     `json:"id"`
	SourceAccountID      int64     `json:"source_account_id"`
	DestinationAccountID int64     `json:"destination_account_id"`
	Amount               int64     `json:"amount"` // smallest currency unit
	CreatedAt            time.Time `json:"created_at"`
}

// TransferRequest is the DTO for incoming transfer API requests.
type TransferRequest struct {
	SourceAccountID      int64 `json:"source_account_id"`
	DestinationAccountID int64 `json:"destination_account_id"`
	Amount               int64 `json:"amount"` // smallest currency unit
}
