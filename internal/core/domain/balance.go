package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountRef identifies one account holder's wallet within a branch. Balance
// records and history streams are keyed by this composite identity.
type AccountRef struct {
	BranchID        string `json:"branchID"`
	AccountHolderID string `json:"accountHolderID"`
}

// IsComplete reports whether both parts of the identity are present.
func (r AccountRef) IsComplete() bool {
	return r.BranchID != "" && r.AccountHolderID != ""
}

// Balance is the per-account wallet record. MainBalance is the only quantity
// mutated by transfers and must never be negative in a committed state.
// PercentBalance is a secondary bucket initialized to zero on creation and
// untouched by transfers.
type Balance struct {
	AccountRef
	MainBalance    decimal.Decimal `json:"mainBalance"`
	PercentBalance decimal.Decimal `json:"percentBalance"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}
