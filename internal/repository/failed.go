package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/akave-ai/browserlog/internal/model"
	"github.com/akave-ai/browserlog/internal/query"
)

// FailedLogRepository persists and reads failed ingestion attempts.
type FailedLogRepository struct {
	db DBTX
}

func NewFailedLogRepository(db DBTX) *FailedLogRepository {
	return &FailedLogRepository{db: db}
}

// Create inserts a failed attempt, assigning an id and received_at when unset.
func (r *FailedLogRepository) Create(ctx context.Context, f *model.FailedLogEntry) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	var receivedAt any
	if !f.ReceivedAt.IsZero() {
		receivedAt = f.ReceivedAt
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO failed_log_entries (id, raw_data, error_message, received_at, ip_address)
		VALUES ($1, $2, $3, COALESCE($4, now()), $5)
		RETURNING received_at`,
		f.ID,
		f.RawData,
		f.ErrorMessage,
		receivedAt,
		f.IPAddress,
	).Scan(&f.ReceivedAt)
}

// GetByID returns one failed attempt by id, or nil if not found.
func (r *FailedLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.FailedLogEntry, error) {
	var f model.FailedLogEntry
	err := r.db.QueryRow(ctx, `
		SELECT id, raw_data, error_message, received_at, ip_address
		FROM failed_log_entries WHERE id = $1`, id).Scan(
		&f.ID,
		&f.RawData,
		&f.ErrorMessage,
		&f.ReceivedAt,
		&f.IPAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// Page returns failed attempts newest first, PageSize per page.
func (r *FailedLogRepository) Page(ctx context.Context, requested string) ([]model.FailedLogEntry, query.Page, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM failed_log_entries`).Scan(&total); err != nil {
		return nil, query.Page{}, fmt.Errorf("count failed log entries: %w", err)
	}
	page := query.Paginate(total, requested)

	rows, err := r.db.Query(ctx, `
		SELECT id, raw_data, error_message, received_at, ip_address
		FROM failed_log_entries
		ORDER BY received_at DESC, id DESC
		LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, query.Page{}, fmt.Errorf("query failed log entries: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.FailedLogEntry])
	if err != nil {
		return nil, query.Page{}, err
	}
	return list, page, nil
}
