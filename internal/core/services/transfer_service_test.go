package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/branchpay/transfer_processor/internal/apperrors"
	"github.com/branchpay/transfer_processor/internal/core/domain"
	portsrepo "github.com/branchpay/transfer_processor/internal/core/ports/repositories"
	portssvc "github.com/branchpay/transfer_processor/internal/core/ports/services"
	"github.com/branchpay/transfer_processor/internal/core/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockLedgerRepository is a mock type for the LedgerRepository interface
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) ApplyTransfer(ctx context.Context, req domain.TransferRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockLedgerRepository) FindBalance(ctx context.Context, ref domain.AccountRef) (*domain.Balance, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Balance), args.Error(1)
}

func (m *MockLedgerRepository) ListTransactionsByAccount(ctx context.Context, ref domain.AccountRef, limit int, nextToken *string) ([]domain.BalanceTransaction, *string, error) {
	args := m.Called(ctx, ref, limit, nextToken)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]domain.BalanceTransaction), args.Get(1).(*string), args.Error(2)
}

var _ portsrepo.LedgerRepository = (*MockLedgerRepository)(nil)

// MockTransferRepository is a mock type for the TransferRepository interface
type MockTransferRepository struct {
	mock.Mock
}

func (m *MockTransferRepository) CreateTransferRequest(ctx context.Context, req domain.TransferRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockTransferRepository) FindTransferByID(ctx context.Context, transferID string) (*domain.TransferRequest, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransferRequest), args.Error(1)
}

func (m *MockTransferRepository) FindPending(ctx context.Context, limit int) ([]domain.TransferRequest, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransferRequest), args.Error(1)
}

func (m *MockTransferRepository) MarkTransferFailed(ctx context.Context, transferID string, errMsg string, processedAt time.Time) error {
	args := m.Called(ctx, transferID, errMsg, processedAt)
	return args.Error(0)
}

var _ portsrepo.TransferRepository = (*MockTransferRepository)(nil)

// --- Test Suite Setup ---

type TransferServiceTestSuite struct {
	suite.Suite
	mockLedgerRepo   *MockLedgerRepository
	mockTransferRepo *MockTransferRepository
	service          portssvc.TransferSvcFacade
}

func (suite *TransferServiceTestSuite) SetupTest() {
	suite.mockLedgerRepo = new(MockLedgerRepository)
	suite.mockTransferRepo = new(MockTransferRepository)
	suite.service = services.NewTransferService(suite.mockLedgerRepo, suite.mockTransferRepo, nil)
}

func pendingTransfer() domain.TransferRequest {
	return domain.TransferRequest{
		TransferID: uuid.NewString(),
		Sender:     domain.AccountRef{BranchID: "branch-a", AccountHolderID: "alice"},
		Recipient:  domain.AccountRef{BranchID: "branch-b", AccountHolderID: "bob"},
		Amount:     decimal.NewFromInt(50),
		Note:       "rent",
		Status:     domain.TransferPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// --- Test Cases ---

func (suite *TransferServiceTestSuite) TestProcessTransfer_Success() {
	ctx := context.Background()
	req := pendingTransfer()

	suite.mockLedgerRepo.On("ApplyTransfer", ctx, req).Return(nil).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err)
	suite.mockLedgerRepo.AssertExpectations(suite.T())
	suite.mockTransferRepo.AssertNotCalled(suite.T(), "MarkTransferFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_InsufficientFunds() {
	ctx := context.Background()
	req := pendingTransfer()

	suite.mockLedgerRepo.On("ApplyTransfer", ctx, req).Return(apperrors.ErrInsufficientFunds).Once()
	suite.mockTransferRepo.On("MarkTransferFailed", ctx, req.TransferID, "insufficient funds", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err, "a domain failure is consumed, not propagated")
	suite.mockLedgerRepo.AssertExpectations(suite.T())
	suite.mockTransferRepo.AssertExpectations(suite.T())
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_SenderBalanceMissing() {
	ctx := context.Background()
	req := pendingTransfer()

	suite.mockLedgerRepo.On("ApplyTransfer", ctx, req).Return(apperrors.ErrSenderBalanceMissing).Once()
	suite.mockTransferRepo.On("MarkTransferFailed", ctx, req.TransferID, "sender balance record does not exist", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err)
	suite.mockLedgerRepo.AssertExpectations(suite.T())
	suite.mockTransferRepo.AssertExpectations(suite.T())
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_InvalidData_NoLedgerAccess() {
	ctx := context.Background()
	req := pendingTransfer()
	req.Recipient.AccountHolderID = ""

	suite.mockTransferRepo.On("MarkTransferFailed", ctx, req.TransferID, "Invalid or incomplete transfer data provided.", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err)
	suite.mockLedgerRepo.AssertNotCalled(suite.T(), "ApplyTransfer", mock.Anything, mock.Anything)
	suite.mockTransferRepo.AssertExpectations(suite.T())
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_ZeroAmountInvalid() {
	ctx := context.Background()
	req := pendingTransfer()
	req.Amount = decimal.Zero

	suite.mockTransferRepo.On("MarkTransferFailed", ctx, req.TransferID, "Invalid or incomplete transfer data provided.", mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err)
	suite.mockLedgerRepo.AssertNotCalled(suite.T(), "ApplyTransfer", mock.Anything, mock.Anything)
	suite.mockTransferRepo.AssertExpectations(suite.T())
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_TerminalRedeliverySkipped() {
	ctx := context.Background()
	req := pendingTransfer()
	req.Status = domain.TransferCompleted

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err)
	suite.mockLedgerRepo.AssertNotCalled(suite.T(), "ApplyTransfer", mock.Anything, mock.Anything)
	suite.mockTransferRepo.AssertNotCalled(suite.T(), "MarkTransferFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_AlreadyFinalizedElsewhere() {
	ctx := context.Background()
	req := pendingTransfer()

	suite.mockLedgerRepo.On("ApplyTransfer", ctx, req).Return(apperrors.ErrTransferNotPending).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err, "a concurrently finalized request is a silent skip")
	suite.mockLedgerRepo.AssertExpectations(suite.T())
	suite.mockTransferRepo.AssertNotCalled(suite.T(), "MarkTransferFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_ConflictExhausted() {
	ctx := context.Background()
	req := pendingTransfer()
	applyErr := fmt.Errorf("%w: 5 attempts for transfer %s", apperrors.ErrConflictExhausted, req.TransferID)

	suite.mockLedgerRepo.On("ApplyTransfer", ctx, req).Return(applyErr).Once()
	suite.mockTransferRepo.On("MarkTransferFailed", ctx, req.TransferID, applyErr.Error(), mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().NoError(err)
	suite.mockLedgerRepo.AssertExpectations(suite.T())
	suite.mockTransferRepo.AssertExpectations(suite.T())
}

func (suite *TransferServiceTestSuite) TestProcessTransfer_TerminalWriteFailurePropagates() {
	ctx := context.Background()
	req := pendingTransfer()
	writeErr := errors.New("connection reset")

	suite.mockLedgerRepo.On("ApplyTransfer", ctx, req).Return(apperrors.ErrInsufficientFunds).Once()
	suite.mockTransferRepo.On("MarkTransferFailed", ctx, req.TransferID, "insufficient funds", mock.AnythingOfType("time.Time")).Return(writeErr).Once()

	err := suite.service.ProcessTransfer(ctx, req)

	suite.Require().Error(err, "failing to record the terminal state must surface")
	suite.ErrorIs(err, writeErr)
	suite.mockTransferRepo.AssertExpectations(suite.T())
}

func (suite *TransferServiceTestSuite) TestGetTransferByID_NotFound() {
	ctx := context.Background()

	suite.mockTransferRepo.On("FindTransferByID", ctx, "missing").Return(nil, apperrors.ErrNotFound).Once()

	transfer, err := suite.service.GetTransferByID(ctx, "missing")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.Nil(transfer)
}

func TestTransferServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TransferServiceTestSuite))
}

// --- Concurrency behaviour against an in-memory ledger ---

// fakeLedger serializes transfers behind a mutex the way the database
// serializes them behind row locks, so concurrent double spends from one
// account can be exercised without a database.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[domain.AccountRef]decimal.Decimal
	applied  []string
}

func (f *fakeLedger) ApplyTransfer(ctx context.Context, req domain.TransferRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	senderBal, ok := f.balances[req.Sender]
	if !ok {
		return apperrors.ErrSenderBalanceMissing
	}
	if senderBal.LessThan(req.Amount) {
		return apperrors.ErrInsufficientFunds
	}
	f.balances[req.Sender] = senderBal.Sub(req.Amount)
	f.balances[req.Recipient] = f.balances[req.Recipient].Add(req.Amount)
	f.applied = append(f.applied, req.TransferID)
	return nil
}

func (f *fakeLedger) FindBalance(ctx context.Context, ref domain.AccountRef) (*domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[ref]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &domain.Balance{AccountRef: ref, MainBalance: bal}, nil
}

func (f *fakeLedger) ListTransactionsByAccount(ctx context.Context, ref domain.AccountRef, limit int, nextToken *string) ([]domain.BalanceTransaction, *string, error) {
	return nil, nil, nil
}

// recordingTransferRepo records terminal failure writes.
type recordingTransferRepo struct {
	mu     sync.Mutex
	failed map[string]string
}

func (r *recordingTransferRepo) CreateTransferRequest(ctx context.Context, req domain.TransferRequest) error {
	return nil
}

func (r *recordingTransferRepo) FindTransferByID(ctx context.Context, transferID string) (*domain.TransferRequest, error) {
	return nil, apperrors.ErrNotFound
}

func (r *recordingTransferRepo) FindPending(ctx context.Context, limit int) ([]domain.TransferRequest, error) {
	return nil, nil
}

func (r *recordingTransferRepo) MarkTransferFailed(ctx context.Context, transferID string, errMsg string, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[transferID] = errMsg
	return nil
}

func TestProcessTransfer_ConcurrentDoubleSpend(t *testing.T) {
	sender := domain.AccountRef{BranchID: "branch-a", AccountHolderID: "alice"}
	recipient := domain.AccountRef{BranchID: "branch-b", AccountHolderID: "bob"}

	ledger := &fakeLedger{balances: map[domain.AccountRef]decimal.Decimal{
		sender: decimal.NewFromInt(100),
	}}
	transferRepo := &recordingTransferRepo{failed: make(map[string]string)}
	svc := services.NewTransferService(ledger, transferRepo, nil)

	// Two transfers of 60 against a balance of 100: exactly one can succeed.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		req := domain.TransferRequest{
			TransferID: fmt.Sprintf("t-%d", i),
			Sender:     sender,
			Recipient:  recipient,
			Amount:     decimal.NewFromInt(60),
			Status:     domain.TransferPending,
		}
		wg.Add(1)
		go func(req domain.TransferRequest) {
			defer wg.Done()
			if err := svc.ProcessTransfer(context.Background(), req); err != nil {
				t.Errorf("ProcessTransfer returned unexpected error: %v", err)
			}
		}(req)
	}
	wg.Wait()

	if len(ledger.applied) != 1 {
		t.Fatalf("expected exactly one applied transfer, got %d", len(ledger.applied))
	}
	if len(transferRepo.failed) != 1 {
		t.Fatalf("expected exactly one failed transfer, got %d", len(transferRepo.failed))
	}
	for _, reason := range transferRepo.failed {
		if reason != "insufficient funds" {
			t.Errorf("expected failure reason %q, got %q", "insufficient funds", reason)
		}
	}

	senderBal, err := ledger.FindBalance(context.Background(), sender)
	if err != nil {
		t.Fatalf("FindBalance: %v", err)
	}
	if !senderBal.MainBalance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected sender balance 40, got %s", senderBal.MainBalance)
	}
	recipientBal, err := ledger.FindBalance(context.Background(), recipient)
	if err != nil {
		t.Fatalf("FindBalance: %v", err)
	}
	if !recipientBal.MainBalance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("expected recipient balance 60, got %s", recipientBal.MainBalance)
	}
}
