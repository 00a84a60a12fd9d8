package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/akave-ai/browserlog/internal/model"
	"github.com/akave-ai/browserlog/internal/query"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const logEntryColumns = `id, "time", url, method, "type", initiator, tab_id, request_id, request_body,
	response, status_code, source, html, response_time, employee, received_at, ip_address`

// LogEntryRepository persists and reads log entries. It never updates a row.
type LogEntryRepository struct {
	db DBTX
}

// NewLogEntryRepository returns a LogEntryRepository using the given pool.
func NewLogEntryRepository(db DBTX) *LogEntryRepository {
	return &LogEntryRepository{db: db}
}

// Create inserts a new entry. ID is generated when unset and received_at
// defaults to now() when zero.
func (r *LogEntryRepository) Create(ctx context.Context, e *model.LogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var receivedAt any
	if !e.ReceivedAt.IsZero() {
		receivedAt = e.ReceivedAt
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO log_entries (id, "time", url, method, "type", initiator, tab_id, request_id,
			request_body, response, status_code, source, html, response_time, employee,
			received_at, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			COALESCE($16, now()), $17)
		RETURNING received_at`,
		e.ID,
		e.Time,
		e.URL,
		e.Method,
		e.Type,
		e.Initiator,
		e.TabID,
		e.RequestID,
		nonNil(e.RequestBody),
		nonNil(e.Response),
		e.StatusCode,
		e.Source,
		nonNil(e.HTML),
		e.ResponseTime,
		e.Employee,
		receivedAt,
		e.IPAddress,
	).Scan(&e.ReceivedAt)
}

// GetByID returns one entry by id, or nil if not found.
func (r *LogEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LogEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+logEntryColumns+` FROM log_entries WHERE id = $1`, id)
	e, err := scanLogEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// Count returns how many entries match c.
func (r *LogEntryRepository) Count(ctx context.Context, c query.Criteria) (int, error) {
	where, args := c.Where()
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM log_entries `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count log entries: %w", err)
	}
	return n, nil
}

// Page returns the requested page of entries matching c, in c's order.
func (r *LogEntryRepository) Page(ctx context.Context, c query.Criteria, requested string) ([]model.LogEntry, query.Page, error) {
	total, err := r.Count(ctx, c)
	if err != nil {
		return nil, query.Page{}, err
	}
	page := query.Paginate(total, requested)

	where, args := c.Where()
	sql := fmt.Sprintf(`SELECT %s FROM log_entries %s %s LIMIT %d OFFSET %d`,
		logEntryColumns, where, c.OrderBy(), page.Limit, page.Offset)
	list := make([]model.LogEntry, 0, page.Limit)
	err = r.each(ctx, sql, args, func(e *model.LogEntry) error {
		list = append(list, *e)
		return nil
	})
	if err != nil {
		return nil, query.Page{}, err
	}
	return list, page, nil
}

// Each streams every entry matching c, in c's order, to fn. It stops at the
// first error fn returns.
func (r *LogEntryRepository) Each(ctx context.Context, c query.Criteria, fn func(*model.LogEntry) error) error {
	where, args := c.Where()
	sql := fmt.Sprintf(`SELECT %s FROM log_entries %s %s`, logEntryColumns, where, c.OrderBy())
	return r.each(ctx, sql, args, fn)
}

// Employees returns the distinct non-empty employee names, sorted.
func (r *LogEntryRepository) Employees(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT employee FROM log_entries
		WHERE employee <> ''
		ORDER BY employee`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *LogEntryRepository) each(ctx context.Context, sql string, args []any, fn func(*model.LogEntry) error) error {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanLogEntry(row pgx.Row) (*model.LogEntry, error) {
	var e model.LogEntry
	err := row.Scan(
		&e.ID,
		&e.Time,
		&e.URL,
		&e.Method,
		&e.Type,
		&e.Initiator,
		&e.TabID,
		&e.RequestID,
		&e.RequestBody,
		&e.Response,
		&e.StatusCode,
		&e.Source,
		&e.HTML,
		&e.ResponseTime,
		&e.Employee,
		&e.ReceivedAt,
		&e.IPAddress,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// nonNil stores absent binaries as empty bytea rather than NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
