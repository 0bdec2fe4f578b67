package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/branchpay/transfer_processor/internal/apperrors"
	"github.com/branchpay/transfer_processor/internal/core/domain"
	portsrepo "github.com/branchpay/transfer_processor/internal/core/ports/repositories"
	portssvc "github.com/branchpay/transfer_processor/internal/core/ports/services"
	"github.com/branchpay/transfer_processor/internal/dto"
	"github.com/branchpay/transfer_processor/internal/middleware"
)

// ledgerService provides read-only views over balances and history streams.
type ledgerService struct {
	ledgerRepo portsrepo.LedgerRepository
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(ledgerRepo portsrepo.LedgerRepository) portssvc.LedgerSvcFacade {
	return &ledgerService{ledgerRepo: ledgerRepo}
}

var _ portssvc.LedgerSvcFacade = (*ledgerService)(nil)

// GetBalance retrieves one account's balance record.
func (s *ledgerService) GetBalance(ctx context.Context, ref domain.AccountRef) (*domain.Balance, error) {
	if !ref.IsComplete() {
		return nil, fmt.Errorf("%w: branch and account holder are required", apperrors.ErrValidation)
	}
	balance, err := s.ledgerRepo.FindBalance(ctx, ref)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			middleware.GetLoggerFromCtx(ctx).Error("Failed to find balance", slog.String("error", err.Error()), slog.String("account_holder_id", ref.AccountHolderID))
		}
		return nil, err
	}
	return balance, nil
}

// ListTransactions retrieves one page of an account's history stream.
func (s *ledgerService) ListTransactions(ctx context.Context, ref domain.AccountRef, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if !ref.IsComplete() {
		return nil, fmt.Errorf("%w: branch and account holder are required", apperrors.ErrValidation)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	transactions, nextToken, err := s.ledgerRepo.ListTransactionsByAccount(ctx, ref, limit, params.NextToken)
	if err != nil {
		logger.Error("Failed to list transactions for account", slog.String("error", err.Error()), slog.String("account_holder_id", ref.AccountHolderID))
		return nil, err
	}

	resp := &dto.ListTransactionsResponse{
		Transactions: dto.ToTransactionResponses(transactions),
		NextToken:    nextToken,
	}

	logger.Debug("Transactions listed for account", slog.Int("count", len(transactions)))
	return resp, nil
}
