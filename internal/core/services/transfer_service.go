package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/branchpay/transfer_processor/internal/apperrors"
	"github.com/branchpay/transfer_processor/internal/core/domain"
	portsrepo "github.com/branchpay/transfer_processor/internal/core/ports/repositories"
	portssvc "github.com/branchpay/transfer_processor/internal/core/ports/services"
	"github.com/branchpay/transfer_processor/internal/middleware"
	"github.com/branchpay/transfer_processor/internal/utils"
)

// invalidTransferDataMsg is the fixed error recorded for malformed input.
// Validation failures are terminal without any ledger access: malformed input
// can never become valid by retrying.
const invalidTransferDataMsg = "Invalid or incomplete transfer data provided."

// transferService is the transfer processor core.
type transferService struct {
	ledgerRepo   portsrepo.LedgerRepository
	transferRepo portsrepo.TransferRepository
	analytics    *utils.PosthogClientWrapper
}

// NewTransferService creates a new TransferService. analytics may be an
// uninitialized wrapper; events then degrade to no-ops.
func NewTransferService(ledgerRepo portsrepo.LedgerRepository, transferRepo portsrepo.TransferRepository, analytics *utils.PosthogClientWrapper) portssvc.TransferSvcFacade {
	return &transferService{
		ledgerRepo:   ledgerRepo,
		transferRepo: transferRepo,
		analytics:    analytics,
	}
}

var _ portssvc.TransferSvcFacade = (*transferService)(nil)

// ProcessTransfer handles one delivered transfer request. Domain and conflict
// failures are converted to the request's failed terminal state and consumed;
// the only error returned is a failure to write the terminal outcome itself,
// which leaves the request pending for an external monitor to find.
func (s *transferService) ProcessTransfer(ctx context.Context, req domain.TransferRequest) error {
	logger := middleware.GetLoggerFromCtx(ctx).With(slog.String("transfer_id", req.TransferID))

	if req.IsTerminal() {
		logger.Info("Transfer already in terminal state, skipping redelivery", slog.String("status", string(req.Status)))
		return nil
	}

	if !req.IsValid() {
		logger.Warn("Transfer request failed validation",
			slog.String("sender_id", req.Sender.AccountHolderID),
			slog.String("recipient_id", req.Recipient.AccountHolderID),
			slog.String("amount", req.Amount.String()))
		return s.failTransfer(ctx, logger, req, invalidTransferDataMsg)
	}

	err := s.ledgerRepo.ApplyTransfer(ctx, req)
	if err == nil {
		logger.Info("Transfer completed",
			slog.String("sender_id", req.Sender.AccountHolderID),
			slog.String("recipient_id", req.Recipient.AccountHolderID),
			slog.String("amount", req.Amount.String()))
		s.capture(req, "transfer_completed", nil)
		return nil
	}

	if errors.Is(err, apperrors.ErrTransferNotPending) {
		// A concurrent run finalized the request first; nothing was committed
		// here, so no completion log and no analytics event.
		logger.Info("Transfer already finalized elsewhere, skipping")
		return nil
	}

	switch {
	case errors.Is(err, apperrors.ErrSenderBalanceMissing), errors.Is(err, apperrors.ErrInsufficientFunds):
		logger.Warn("Transfer rejected by ledger", slog.String("reason", err.Error()))
	case errors.Is(err, apperrors.ErrConflictExhausted):
		// Distinct from domain failures: the same transfer may be resubmitted
		// as a new request.
		logger.Error("Transfer gave up after contention retries", slog.String("error", err.Error()))
	default:
		logger.Error("Transfer transaction failed", slog.String("error", err.Error()))
	}
	return s.failTransfer(ctx, logger, req, err.Error())
}

// failTransfer writes the failed terminal state, best-effort. A failed write
// here is the one case that propagates: the request stays pending and must be
// caught by an operator or monitor.
func (s *transferService) failTransfer(ctx context.Context, logger *slog.Logger, req domain.TransferRequest, errMsg string) error {
	now := time.Now().UTC()
	if err := s.transferRepo.MarkTransferFailed(ctx, req.TransferID, errMsg, now); err != nil {
		logger.Error("Could not write failed outcome, request left pending",
			slog.String("outcome_error", errMsg),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to record terminal state for transfer %s: %w", req.TransferID, err)
	}
	logger.Info("Transfer marked failed", slog.String("reason", errMsg))
	s.capture(req, "transfer_failed", map[string]any{"reason": errMsg})
	return nil
}

// capture enqueues an outcome event. Strictly post-commit: the transaction
// body itself must stay free of external calls so conflict re-execution is
// silent and safe.
func (s *transferService) capture(req domain.TransferRequest, event string, props map[string]any) {
	if s.analytics == nil || !s.analytics.IsInitialized() {
		return
	}
	if props == nil {
		props = map[string]any{}
	}
	props["sender_branch_id"] = req.Sender.BranchID
	props["recipient_branch_id"] = req.Recipient.BranchID
	props["amount"] = req.Amount.String()
	s.analytics.Enqueue(req.Sender.AccountHolderID, event, props)
}

// GetTransferByID retrieves a transfer request and its outcome.
func (s *transferService) GetTransferByID(ctx context.Context, transferID string) (*domain.TransferRequest, error) {
	req, err := s.transferRepo.FindTransferByID(ctx, transferID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			middleware.GetLoggerFromCtx(ctx).Error("Failed to find transfer by ID", slog.String("error", err.Error()), slog.String("transfer_id", transferID))
		}
		return nil, err
	}
	return req, nil
}
