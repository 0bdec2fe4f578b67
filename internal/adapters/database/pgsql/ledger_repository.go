package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/branchpay/transfer_processor/internal/apperrors"
	"github.com/branchpay/transfer_processor/internal/core/domain"
	portsrepo "github.com/branchpay/transfer_processor/internal/core/ports/repositories"
	"github.com/branchpay/transfer_processor/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const retryBackoffStep = 25 * time.Millisecond

type PgxLedgerRepository struct {
	BaseRepository
	maxAttempts int
}

// NewLedgerRepository creates the Postgres-backed ledger store. maxAttempts
// bounds the retry loop around serialization/deadlock conflicts.
func NewLedgerRepository(pool *pgxpool.Pool, maxAttempts int) portsrepo.LedgerRepository {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &PgxLedgerRepository{
		BaseRepository: BaseRepository{Pool: pool},
		maxAttempts:    maxAttempts,
	}
}

var _ portsrepo.LedgerRepository = (*PgxLedgerRepository)(nil)

// ApplyTransfer runs the atomic transfer unit, re-executing the whole
// read-validate-write body from scratch on conflict, up to maxAttempts.
// Domain errors abort immediately; only infrastructure conflicts retry.
func (r *PgxLedgerRepository) ApplyTransfer(ctx context.Context, req domain.TransferRequest) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.applyTransferOnce(ctx, req)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		lastErr = err
		slog.WarnContext(ctx, "Transfer transaction conflicted, retrying",
			slog.String("transfer_id", req.TransferID), slog.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return apperrors.NewAppError(500, "transfer transaction cancelled", ctx.Err())
		case <-time.After(time.Duration(attempt) * retryBackoffStep):
		}
	}
	return fmt.Errorf("%w: %d attempts for transfer %s: %v", apperrors.ErrConflictExhausted, r.maxAttempts, req.TransferID, lastErr)
}

// applyTransferOnce is one execution of the transaction body. Every read and
// write happens inside the same database transaction and shares one
// server-assigned timestamp.
func (r *PgxLedgerRepository) applyTransferOnce(ctx context.Context, req domain.TransferRequest) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	var txnTime time.Time
	if err := tx.QueryRow(ctx, `SELECT now();`).Scan(&txnTime); err != nil {
		return apperrors.NewAppError(500, "failed to read transaction timestamp", err)
	}

	balances, err := lockBalances(ctx, tx, req.Sender, req.Recipient)
	if err != nil {
		return err
	}

	sender, senderExists := balances[req.Sender]
	if !senderExists {
		return apperrors.ErrSenderBalanceMissing
	}

	// A NULL main_balance reads as zero. Loud, because a writer omitting the
	// field unintentionally would otherwise corrupt silently.
	if sender.mainBalanceNull {
		slog.WarnContext(ctx, "Sender balance record has NULL main_balance, treating as zero",
			slog.String("branch_id", req.Sender.BranchID),
			slog.String("account_holder_id", req.Sender.AccountHolderID))
	}

	recipient, recipientExists := balances[req.Recipient]
	var recipientState *lockedBalance
	if recipientExists {
		recipientState = &recipient
	}

	plan, err := planTransfer(req, sender, recipientState, txnTime)
	if err != nil {
		return err
	}

	updateQuery := `
		UPDATE balances
		SET main_balance = $3, last_updated = $4
		WHERE branch_id = $1 AND account_holder_id = $2;
	`
	if _, err := tx.Exec(ctx, updateQuery, req.Sender.BranchID, req.Sender.AccountHolderID, plan.senderBalance, txnTime); err != nil {
		return apperrors.NewAppError(500, "failed to debit sender balance", err)
	}

	if plan.createRecipient {
		createQuery := `
			INSERT INTO balances (branch_id, account_holder_id, main_balance, percent_balance, last_updated)
			VALUES ($1, $2, $3, $4, $5);
		`
		if _, err := tx.Exec(ctx, createQuery, req.Recipient.BranchID, req.Recipient.AccountHolderID, plan.recipientBalance, plan.recipientPercent, txnTime); err != nil {
			return apperrors.NewAppError(500, "failed to create recipient balance", err)
		}
	} else {
		if _, err := tx.Exec(ctx, updateQuery, req.Recipient.BranchID, req.Recipient.AccountHolderID, plan.recipientBalance, txnTime); err != nil {
			return apperrors.NewAppError(500, "failed to credit recipient balance", err)
		}
	}

	historyQuery := `
		INSERT INTO balance_transactions (transaction_id, branch_id, account_holder_id, type, amount, counterparty_branch_id, counterparty_id, note, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	batch := &pgx.Batch{}
	for _, entry := range plan.entries {
		batch.Queue(historyQuery,
			entry.TransactionID, entry.Account.BranchID, entry.Account.AccountHolderID,
			string(entry.Type), entry.Amount,
			entry.Counterparty.BranchID, entry.Counterparty.AccountHolderID,
			entry.Note, entry.Status, entry.CreatedAt,
		)
	}
	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return apperrors.NewAppError(500, "failed to append history entries for transfer "+req.TransferID, err)
	}

	// The status guard makes redelivered or concurrently duplicated runs
	// commit nothing: zero rows here rolls the whole unit back.
	cmdTag, err := tx.Exec(ctx, `
		UPDATE transfer_requests
		SET status = $2, processed_at = $3
		WHERE transfer_id = $1 AND status = $4;
	`, req.TransferID, domain.TransferCompleted, txnTime, domain.TransferPending)
	if err != nil {
		return apperrors.NewAppError(500, "failed to complete transfer request "+req.TransferID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrTransferNotPending
	}

	return r.Commit(ctx, tx)
}

// lockedBalance is the in-transaction view of one balance row.
type lockedBalance struct {
	mainBalance     decimal.Decimal
	mainBalanceNull bool
}

// transferPlan is the full set of ledger writes one transfer commits: both
// balance values, whether the recipient row must be created, and the two
// history entries.
type transferPlan struct {
	senderBalance    decimal.Decimal
	recipientBalance decimal.Decimal
	recipientPercent decimal.Decimal
	createRecipient  bool
	entries          [2]domain.BalanceTransaction
}

// planTransfer computes the writes for one transfer from the locked balance
// state. recipient is nil when no recipient row exists yet; the plan then
// creates it with a zero percent balance. Both history entries share txnTime
// and the request's note, with the amount negated on the sender's side.
func planTransfer(req domain.TransferRequest, sender lockedBalance, recipient *lockedBalance, txnTime time.Time) (transferPlan, error) {
	if sender.mainBalance.LessThan(req.Amount) {
		return transferPlan{}, apperrors.ErrInsufficientFunds
	}

	recipientBalance := decimal.Zero
	if recipient != nil {
		recipientBalance = recipient.mainBalance
	}

	plan := transferPlan{
		senderBalance:    sender.mainBalance.Sub(req.Amount),
		recipientBalance: recipientBalance.Add(req.Amount),
		recipientPercent: decimal.Zero,
		createRecipient:  recipient == nil,
	}
	plan.entries[0] = domain.BalanceTransaction{
		TransactionID: uuid.NewString(),
		Account:       req.Sender,
		Type:          domain.EntrySend,
		Amount:        req.Amount.Neg(),
		Counterparty:  req.Recipient,
		Note:          req.Note,
		Status:        domain.EntryCompleted,
		CreatedAt:     txnTime,
	}
	plan.entries[1] = domain.BalanceTransaction{
		TransactionID: uuid.NewString(),
		Account:       req.Recipient,
		Type:          domain.EntryReceive,
		Amount:        req.Amount,
		Counterparty:  req.Sender,
		Note:          req.Note,
		Status:        domain.EntryCompleted,
		CreatedAt:     txnTime,
	}
	return plan, nil
}

// lockBalances reads and row-locks the balance records involved in a transfer.
// The composite-key IN clause naturally dedupes a self-transfer, and the locks
// are held until commit so the sufficiency check and the debit form one atomic
// unit. Rows are locked in key order so opposing transfers between the same
// two accounts acquire locks in the same sequence instead of deadlocking.
func lockBalances(ctx context.Context, tx pgx.Tx, sender, recipient domain.AccountRef) (map[domain.AccountRef]lockedBalance, error) {
	query := `
		SELECT branch_id, account_holder_id, main_balance
		FROM balances
		WHERE (branch_id, account_holder_id) IN (($1, $2), ($3, $4))
		ORDER BY branch_id, account_holder_id
		FOR UPDATE;
	`
	rows, err := tx.Query(ctx, query,
		sender.BranchID, sender.AccountHolderID,
		recipient.BranchID, recipient.AccountHolderID,
	)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to lock balance records", err)
	}
	defer rows.Close()

	balances := make(map[domain.AccountRef]lockedBalance, 2)
	for rows.Next() {
		var ref domain.AccountRef
		var mainBalance *decimal.Decimal
		if err := rows.Scan(&ref.BranchID, &ref.AccountHolderID, &mainBalance); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan locked balance row", err)
		}
		locked := lockedBalance{mainBalance: decimal.Zero, mainBalanceNull: mainBalance == nil}
		if mainBalance != nil {
			locked.mainBalance = *mainBalance
		}
		balances[ref] = locked
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating locked balance rows", err)
	}
	return balances, nil
}

// isRetryableTxError reports whether err is a serialization failure (40001) or
// deadlock (40P01), the two conflict classes worth re-running the body for.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// FindBalance retrieves a single balance record by its composite key.
func (r *PgxLedgerRepository) FindBalance(ctx context.Context, ref domain.AccountRef) (*domain.Balance, error) {
	query := `
		SELECT branch_id, account_holder_id, COALESCE(main_balance, 0), percent_balance, last_updated
		FROM balances
		WHERE branch_id = $1 AND account_holder_id = $2;
	`
	var b domain.Balance
	err := r.Pool.QueryRow(ctx, query, ref.BranchID, ref.AccountHolderID).Scan(
		&b.BranchID,
		&b.AccountHolderID,
		&b.MainBalance,
		&b.PercentBalance,
		&b.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find balance for account "+ref.AccountHolderID, err)
	}
	return &b, nil
}

// ListTransactionsByAccount retrieves a paginated page of an account's history
// stream, newest first, using token-based pagination.
func (r *PgxLedgerRepository) ListTransactionsByAccount(ctx context.Context, ref domain.AccountRef, limit int, nextToken *string) ([]domain.BalanceTransaction, *string, error) {
	if limit <= 0 {
		limit = 20
	}
	// Fetch one extra row to determine whether there is a next page.
	fetchLimit := limit + 1

	baseQuery := `
		SELECT transaction_id, branch_id, account_holder_id, type, amount, counterparty_branch_id, counterparty_id, note, status, created_at
		FROM balance_transactions
		WHERE branch_id = $1 AND account_holder_id = $2
	`
	orderByClause := `ORDER BY created_at DESC, transaction_id DESC`

	var rows pgx.Rows
	var err error
	if nextToken != nil && *nextToken != "" {
		lastCreatedAt, lastTransactionID, decodeErr := pagination.DecodeToken(*nextToken)
		if decodeErr != nil {
			return nil, nil, apperrors.NewAppError(400, "invalid nextToken", decodeErr)
		}
		query := baseQuery + ` AND (created_at, transaction_id) < ($3, $4) ` + orderByClause + ` LIMIT $5;`
		rows, err = r.Pool.Query(ctx, query, ref.BranchID, ref.AccountHolderID, lastCreatedAt, lastTransactionID, fetchLimit)
	} else {
		query := baseQuery + orderByClause + ` LIMIT $3;`
		rows, err = r.Pool.Query(ctx, query, ref.BranchID, ref.AccountHolderID, fetchLimit)
	}
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query history for account "+ref.AccountHolderID, err)
	}
	defer rows.Close()

	transactions := make([]domain.BalanceTransaction, 0, fetchLimit)
	for rows.Next() {
		var t domain.BalanceTransaction
		var note sql.NullString
		err := rows.Scan(
			&t.TransactionID,
			&t.Account.BranchID,
			&t.Account.AccountHolderID,
			&t.Type,
			&t.Amount,
			&t.Counterparty.BranchID,
			&t.Counterparty.AccountHolderID,
			&note,
			&t.Status,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan history row for account "+ref.AccountHolderID, err)
		}
		if note.Valid {
			t.Note = note.String
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "error iterating history rows for account "+ref.AccountHolderID, err)
	}

	var nextTokenVal *string
	if len(transactions) > limit {
		last := transactions[limit-1]
		token := pagination.EncodeToken(last.CreatedAt, last.TransactionID)
		nextTokenVal = &token
		transactions = transactions[:limit]
	}

	return transactions, nextTokenVal, nil
}
