package repositories

import (
	"context"

	"github.com/branchpay/transfer_processor/internal/core/domain"
)

// LedgerRepository is the contract the processor consumes from the Ledger
// Store: point reads of balance records and an atomic, isolated transfer
// primitive with bounded retry on conflict.
type LedgerRepository interface {
	// ApplyTransfer executes the full atomic unit for one pending transfer:
	// read both balances, validate sender existence and sufficiency, debit,
	// credit (creating the recipient record if absent), append both history
	// entries and mark the request completed. All writes commit together or
	// not at all, sharing a single server-assigned timestamp.
	//
	// Domain failures surface as apperrors.ErrSenderBalanceMissing or
	// apperrors.ErrInsufficientFunds; contention that outlives the retry
	// budget surfaces as apperrors.ErrConflictExhausted. A request that
	// reached a terminal state before commit rolls everything back and
	// returns apperrors.ErrTransferNotPending so callers can tell the skip
	// apart from a fresh completion.
	ApplyTransfer(ctx context.Context, req domain.TransferRequest) error

	// FindBalance retrieves one balance record, or apperrors.ErrNotFound.
	FindBalance(ctx context.Context, ref domain.AccountRef) (*domain.Balance, error)

	// ListTransactionsByAccount retrieves a page of an account's history,
	// newest first, with token-based pagination.
	ListTransactionsByAccount(ctx context.Context, ref domain.AccountRef, limit int, nextToken *string) ([]domain.BalanceTransaction, *string, error)
}
