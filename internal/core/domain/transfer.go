package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType distinguishes the two sides of a completed transfer in an
// account's history stream.
type EntryType string

const (
	EntrySend    EntryType = "send"
	EntryReceive EntryType = "receive"
)

// EntryCompleted is the only status a history entry is ever written with.
const EntryCompleted = "completed"

// BalanceTransaction is one immutable history entry. Exactly two are produced
// per successful transfer, one per account, sharing the same timestamp and
// note. Amount is negative on the sender's entry and positive on the
// recipient's.
type BalanceTransaction struct {
	TransactionID string          `json:"transactionID"`
	Account       AccountRef      `json:"account"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Counterparty  AccountRef      `json:"counterparty"`
	Note          string          `json:"note"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TransferStatus is the lifecycle state of a transfer request. The terminal
// states are permanent; a request never reverts to pending.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// TransferRequest is the durable record of one requested money movement and
// its outcome. Intake owns the identity/amount/note fields and must not touch
// a record after creating it; the processor exclusively owns Status, Error and
// ProcessedAt.
type TransferRequest struct {
	TransferID  string          `json:"transferID"`
	Sender      AccountRef      `json:"sender"`
	Recipient   AccountRef      `json:"recipient"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note"`
	Status      TransferStatus  `json:"status"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
}

// IsTerminal reports whether the request has already reached a permanent
// outcome. Re-processing a terminal request must be a no-op.
func (t TransferRequest) IsTerminal() bool {
	return t.Status == TransferCompleted || t.Status == TransferFailed
}

// IsValid reports whether the request carries everything the processor needs:
// both identities complete and a strictly positive amount. A zero amount also
// covers the "amount missing" case. Malformed input can never become valid by
// retrying, so this is checked before any ledger access.
func (t TransferRequest) IsValid() bool {
	return t.Sender.IsComplete() && t.Recipient.IsComplete() && t.Amount.GreaterThan(decimal.Zero)
}
