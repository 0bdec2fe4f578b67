package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/branchpay/transfer_processor/internal/apperrors"
	"github.com/branchpay/transfer_processor/internal/core/domain"
	portsrepo "github.com/branchpay/transfer_processor/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxTransferRepository struct {
	BaseRepository
}

// NewTransferRepository creates a new repository for transfer request records.
func NewTransferRepository(pool *pgxpool.Pool) portsrepo.TransferRepository {
	return &PgxTransferRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.TransferRepository = (*PgxTransferRepository)(nil)

const transferColumns = `transfer_id, sender_id, sender_branch_id, recipient_id, recipient_branch_id, amount, note, status, error, created_at, processed_at`

// CreateTransferRequest inserts a new pending request. Identity fields are
// stored as given, including empty ones; the processor is responsible for
// rejecting incomplete data.
func (r *PgxTransferRepository) CreateTransferRequest(ctx context.Context, req domain.TransferRequest) error {
	query := `
		INSERT INTO transfer_requests (transfer_id, sender_id, sender_branch_id, recipient_id, recipient_branch_id, amount, note, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := r.Pool.Exec(ctx, query,
		req.TransferID,
		req.Sender.AccountHolderID,
		req.Sender.BranchID,
		req.Recipient.AccountHolderID,
		req.Recipient.BranchID,
		req.Amount,
		req.Note,
		domain.TransferPending,
		req.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.NewAppError(409, "transfer request "+req.TransferID+" already exists", apperrors.ErrDuplicate)
		}
		return apperrors.NewAppError(500, "failed to create transfer request "+req.TransferID, err)
	}
	return nil
}

// FindTransferByID retrieves a single transfer request record.
func (r *PgxTransferRepository) FindTransferByID(ctx context.Context, transferID string) (*domain.TransferRequest, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_requests WHERE transfer_id = $1;`

	req, err := scanTransferRow(r.Pool.QueryRow(ctx, query, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find transfer request "+transferID, err)
	}
	return req, nil
}

// FindPending returns up to limit pending requests, oldest first. No claim is
// recorded: a request only ever moves from pending to a terminal state, and
// duplicate delivery is neutralized inside the atomic transfer unit.
func (r *PgxTransferRepository) FindPending(ctx context.Context, limit int) ([]domain.TransferRequest, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT ` + transferColumns + `
		FROM transfer_requests
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2;
	`
	rows, err := r.Pool.Query(ctx, query, domain.TransferPending, limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query pending transfer requests", err)
	}
	defer rows.Close()

	requests := []domain.TransferRequest{}
	for rows.Next() {
		req, err := scanTransferRow(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan pending transfer row", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating pending transfer rows", err)
	}
	return requests, nil
}

// MarkTransferFailed writes the failed terminal state outside any ledger
// transaction. Idempotent: a request that already reached a terminal state is
// left untouched.
func (r *PgxTransferRepository) MarkTransferFailed(ctx context.Context, transferID string, errMsg string, processedAt time.Time) error {
	query := `
		UPDATE transfer_requests
		SET status = $2, error = $3, processed_at = $4
		WHERE transfer_id = $1 AND status = $5;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, transferID, domain.TransferFailed, errMsg, processedAt, domain.TransferPending)
	if err != nil {
		return apperrors.NewAppError(500, "failed to mark transfer "+transferID+" failed", err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Either the request does not exist or it is already terminal. Only
		// the former is an error.
		if _, findErr := r.FindTransferByID(ctx, transferID); findErr != nil {
			return findErr
		}
	}
	return nil
}

// scanTransferRow maps one transfer_requests row onto the domain type.
func scanTransferRow(row pgx.Row) (*domain.TransferRequest, error) {
	var req domain.TransferRequest
	var note, errMsg sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(
		&req.TransferID,
		&req.Sender.AccountHolderID,
		&req.Sender.BranchID,
		&req.Recipient.AccountHolderID,
		&req.Recipient.BranchID,
		&req.Amount,
		&note,
		&req.Status,
		&errMsg,
		&req.CreatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}
	if note.Valid {
		req.Note = note.String
	}
	if errMsg.Valid {
		req.Error = errMsg.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		req.ProcessedAt = &t
	}
	return &req, nil
}
