package dto

import (
	"time"

	"github.com/branchpay/transfer_processor/internal/core/domain"
	"github.com/shopspring/decimal"
)

// TransferResponse defines the data returned for a transfer request record.
type TransferResponse struct {
	TransferID        string          `json:"transferID"`
	SenderID          string          `json:"senderId"`
	SenderBranchID    string          `json:"senderBranchId"`
	RecipientID       string          `json:"recipientId"`
	RecipientBranchID string          `json:"recipientBranchId"`
	Amount            decimal.Decimal `json:"amount"`
	Note              string          `json:"note,omitempty"`
	Status            string          `json:"status"`
	Error             string          `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	ProcessedAt       *time.Time      `json:"processedAt,omitempty"`
}

// ToTransferResponse converts a domain.TransferRequest to its response DTO.
func ToTransferResponse(t *domain.TransferRequest) TransferResponse {
	return TransferResponse{
		TransferID:        t.TransferID,
		SenderID:          t.Sender.AccountHolderID,
		SenderBranchID:    t.Sender.BranchID,
		RecipientID:       t.Recipient.AccountHolderID,
		RecipientBranchID: t.Recipient.BranchID,
		Amount:            t.Amount,
		Note:              t.Note,
		Status:            string(t.Status),
		Error:             t.Error,
		CreatedAt:         t.CreatedAt,
		ProcessedAt:       t.ProcessedAt,
	}
}
