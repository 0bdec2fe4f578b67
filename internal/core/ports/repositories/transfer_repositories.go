package repositories

import (
	"context"
	"time"

	"github.com/branchpay/transfer_processor/internal/core/domain"
)

// TransferRepository manages transfer request records. Requests are created by
// the intake collaborator; the processor only ever moves them to a terminal
// state.
type TransferRepository interface {
	// CreateTransferRequest durably enqueues a new pending request. This is
	// the intake side of the contract, exposed for collaborators and tests.
	CreateTransferRequest(ctx context.Context, req domain.TransferRequest) error

	// FindTransferByID retrieves one request, or apperrors.ErrNotFound.
	FindTransferByID(ctx context.Context, transferID string) (*domain.TransferRequest, error)

	// FindPending returns up to limit pending requests, oldest first.
	FindPending(ctx context.Context, limit int) ([]domain.TransferRequest, error)

	// MarkTransferFailed writes the failed terminal state. It is idempotent:
	// a request already in a terminal state is left untouched and no error is
	// returned.
	MarkTransferFailed(ctx context.Context, transferID string, errMsg string, processedAt time.Time) error
}
