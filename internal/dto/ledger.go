package dto

import (
	"time"

	"github.com/branchpay/transfer_processor/internal/core/domain"
	"github.com/shopspring/decimal"
)

// BalanceResponse defines the data returned for an account balance record.
type BalanceResponse struct {
	BranchID        string          `json:"branchId"`
	AccountHolderID string          `json:"accountHolderId"`
	MainBalance     decimal.Decimal `json:"mainBalance"`
	PercentBalance  decimal.Decimal `json:"percentBalance"`
	LastUpdated     time.Time       `json:"lastUpdated"`
}

// TransactionResponse defines the data returned for one history entry.
type TransactionResponse struct {
	TransactionID        string          `json:"transactionID"`
	Type                 string          `json:"type"`
	Amount               decimal.Decimal `json:"amount"`
	CounterpartyID       string          `json:"counterpartyId"`
	CounterpartyBranchID string          `json:"counterpartyBranchId"`
	Note                 string          `json:"note,omitempty"`
	Status               string          `json:"status"`
	Timestamp            time.Time       `json:"timestamp"`
}

// ListTransactionsParams holds parameters for listing account history.
type ListTransactionsParams struct {
	Limit     int     `form:"limit"`
	NextToken *string `form:"nextToken"`
}

// ListTransactionsResponse is one page of account history.
type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextToken    *string               `json:"nextToken,omitempty"`
}

// ToBalanceResponse converts a domain.Balance to its response DTO.
func ToBalanceResponse(b *domain.Balance) BalanceResponse {
	return BalanceResponse{
		BranchID:        b.BranchID,
		AccountHolderID: b.AccountHolderID,
		MainBalance:     b.MainBalance,
		PercentBalance:  b.PercentBalance,
		LastUpdated:     b.LastUpdated,
	}
}

// ToTransactionResponse converts a domain.BalanceTransaction to its response DTO.
func ToTransactionResponse(txn *domain.BalanceTransaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:        txn.TransactionID,
		Type:                 string(txn.Type),
		Amount:               txn.Amount,
		CounterpartyID:       txn.Counterparty.AccountHolderID,
		CounterpartyBranchID: txn.Counterparty.BranchID,
		Note:                 txn.Note,
		Status:               txn.Status,
		Timestamp:            txn.CreatedAt,
	}
}

// ToTransactionResponses converts a slice of history entries to DTOs.
func ToTransactionResponses(txns []domain.BalanceTransaction) []TransactionResponse {
	responses := make([]TransactionResponse, len(txns))
	for i, txn := range txns {
		responses[i] = ToTransactionResponse(&txn)
	}
	return responses
}
