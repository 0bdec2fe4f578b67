package services

import (
	"context"

	"github.com/branchpay/transfer_processor/internal/core/domain"
	"github.com/branchpay/transfer_processor/internal/dto"
)

// TransferSvcFacade is the processor's service surface: one invocation per
// delivered transfer request, safe under redelivery.
type TransferSvcFacade interface {
	// ProcessTransfer runs the transfer processor once for req. All domain and
	// conflict errors are consumed locally and converted into the request's
	// terminal failed state; a non-nil return means the terminal outcome could
	// not even be written and the request is stuck pending.
	ProcessTransfer(ctx context.Context, req domain.TransferRequest) error

	// GetTransferByID retrieves a request and its outcome for readers.
	GetTransferByID(ctx context.Context, transferID string) (*domain.TransferRequest, error)
}

// LedgerSvcFacade exposes read-only views over the ledger.
type LedgerSvcFacade interface {
	GetBalance(ctx context.Context, ref domain.AccountRef) (*domain.Balance, error)
	ListTransactions(ctx context.Context, ref domain.AccountRef, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error)
}
