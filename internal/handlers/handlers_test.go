package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/branchpay/transfer_processor/internal/apperrors"
	"github.com/branchpay/transfer_processor/internal/core/domain"
	portssvc "github.com/branchpay/transfer_processor/internal/core/ports/services"
	"github.com/branchpay/transfer_processor/internal/dto"
	"github.com/branchpay/transfer_processor/internal/handlers"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Mock TransferService ---
type MockTransferService struct {
	mock.Mock
}

func (m *MockTransferService) ProcessTransfer(ctx context.Context, req domain.TransferRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockTransferService) GetTransferByID(ctx context.Context, transferID string) (*domain.TransferRequest, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransferRequest), args.Error(1)
}

var _ portssvc.TransferSvcFacade = (*MockTransferService)(nil)

// --- Mock LedgerService ---
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetBalance(ctx context.Context, ref domain.AccountRef) (*domain.Balance, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Balance), args.Error(1)
}

func (m *MockLedgerService) ListTransactions(ctx context.Context, ref domain.AccountRef, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error) {
	args := m.Called(ctx, ref, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListTransactionsResponse), args.Error(1)
}

var _ portssvc.LedgerSvcFacade = (*MockLedgerService)(nil)

// --- Test Suite Setup ---

type HandlersTestSuite struct {
	suite.Suite
	router              *gin.Engine
	mockTransferService *MockTransferService
	mockLedgerService   *MockLedgerService
}

func (suite *HandlersTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.mockTransferService = new(MockTransferService)
	suite.mockLedgerService = new(MockLedgerService)

	suite.router = gin.New()
	suite.router.GET("/health", handlers.Health)
	v1 := suite.router.Group("/api/v1")
	handlers.RegisterRoutes(v1, suite.mockTransferService, suite.mockLedgerService)
}

func (suite *HandlersTestSuite) serve(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

// --- Test Cases ---

func (suite *HandlersTestSuite) TestHealth() {
	w := suite.serve(http.MethodGet, "/health")
	suite.Equal(http.StatusOK, w.Code)
	suite.JSONEq(`{"status":"ok"}`, w.Body.String())
}

func (suite *HandlersTestSuite) TestGetTransfer_Success() {
	transferID := uuid.NewString()
	processedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	transfer := &domain.TransferRequest{
		TransferID:  transferID,
		Sender:      domain.AccountRef{BranchID: "branch-a", AccountHolderID: "alice"},
		Recipient:   domain.AccountRef{BranchID: "branch-b", AccountHolderID: "bob"},
		Amount:      decimal.NewFromInt(75),
		Status:      domain.TransferCompleted,
		CreatedAt:   processedAt.Add(-time.Minute),
		ProcessedAt: &processedAt,
	}

	suite.mockTransferService.On("GetTransferByID", mock.Anything, transferID).Return(transfer, nil).Once()

	w := suite.serve(http.MethodGet, "/api/v1/transfers/"+transferID)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.TransferResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("alice", resp.SenderID)
	suite.Equal("bob", resp.RecipientID)
	suite.Equal(string(domain.TransferCompleted), resp.Status)
	suite.mockTransferService.AssertExpectations(suite.T())
}

func (suite *HandlersTestSuite) TestGetTransfer_NotFound() {
	suite.mockTransferService.On("GetTransferByID", mock.Anything, "missing").Return(nil, apperrors.ErrNotFound).Once()

	w := suite.serve(http.MethodGet, "/api/v1/transfers/missing")

	suite.Equal(http.StatusNotFound, w.Code)
	suite.mockTransferService.AssertExpectations(suite.T())
}

func (suite *HandlersTestSuite) TestGetBalance_Success() {
	ref := domain.AccountRef{BranchID: "branch-a", AccountHolderID: "alice"}
	balance := &domain.Balance{
		AccountRef:  ref,
		MainBalance: decimal.RequireFromString("120.50"),
		LastUpdated: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	suite.mockLedgerService.On("GetBalance", mock.Anything, ref).Return(balance, nil).Once()

	w := suite.serve(http.MethodGet, "/api/v1/branches/branch-a/accounts/alice/balance")

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.BalanceResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("alice", resp.AccountHolderID)
	suite.True(resp.MainBalance.Equal(decimal.RequireFromString("120.50")))
	suite.mockLedgerService.AssertExpectations(suite.T())
}

func (suite *HandlersTestSuite) TestGetBalance_NotFound() {
	ref := domain.AccountRef{BranchID: "branch-a", AccountHolderID: "nobody"}
	suite.mockLedgerService.On("GetBalance", mock.Anything, ref).Return(nil, apperrors.ErrNotFound).Once()

	w := suite.serve(http.MethodGet, "/api/v1/branches/branch-a/accounts/nobody/balance")

	suite.Equal(http.StatusNotFound, w.Code)
	suite.mockLedgerService.AssertExpectations(suite.T())
}

func (suite *HandlersTestSuite) TestListTransactions_Success() {
	ref := domain.AccountRef{BranchID: "branch-a", AccountHolderID: "alice"}
	token := "next-page"
	resp := &dto.ListTransactionsResponse{
		Transactions: []dto.TransactionResponse{
			{TransactionID: uuid.NewString(), Type: string(domain.EntrySend), Amount: decimal.NewFromInt(-25), Status: domain.EntryCompleted},
		},
		NextToken: &token,
	}

	expectedParams := dto.ListTransactionsParams{Limit: 1}
	suite.mockLedgerService.On("ListTransactions", mock.Anything, ref, expectedParams).Return(resp, nil).Once()

	w := suite.serve(http.MethodGet, "/api/v1/branches/branch-a/accounts/alice/transactions?limit=1")

	suite.Equal(http.StatusOK, w.Code)
	var body dto.ListTransactionsResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	suite.Len(body.Transactions, 1)
	suite.Require().NotNil(body.NextToken)
	suite.Equal(token, *body.NextToken)
	suite.mockLedgerService.AssertExpectations(suite.T())
}

func (suite *HandlersTestSuite) TestListTransactions_BadToken() {
	ref := domain.AccountRef{BranchID: "branch-a", AccountHolderID: "alice"}
	badToken := "not-base64!"
	expectedParams := dto.ListTransactionsParams{NextToken: &badToken}
	appErr := apperrors.NewAppError(400, "invalid nextToken", nil)
	suite.mockLedgerService.On("ListTransactions", mock.Anything, ref, expectedParams).Return(nil, appErr).Once()

	w := suite.serve(http.MethodGet, "/api/v1/branches/branch-a/accounts/alice/transactions?nextToken=not-base64!")

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockLedgerService.AssertExpectations(suite.T())
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
