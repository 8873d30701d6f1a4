package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const leadColumns = `id, contact_id, case_type, status, COALESCE(assigned_agent, ''), COALESCE(notes, ''), created_at, updated_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.ContactID,
		&lead.CaseType,
		&lead.Status,
		&lead.AssignedAgent,
		&lead.Notes,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &lead, nil
}

// Create inserts a new row. The unique index on (contact_id, case_type)
// rejects a second lead for the same pairing.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, contact_id, case_type, status, assigned_agent, notes)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING created_at, updated_at
	`
	lead := &Lead{
		ID:            id,
		ContactID:     req.ContactID,
		CaseType:      req.CaseType,
		Status:        StatusNew,
		AssignedAgent: req.AssignedAgent,
		Notes:         req.Notes,
	}
	if err := r.pool.QueryRow(ctx, query,
		id,
		req.ContactID,
		req.CaseType,
		StatusNew,
		req.AssignedAgent,
		req.Notes,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateLead
		}
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) GetByContactAndCase(ctx context.Context, contactID uuid.UUID, caseType CaseType) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE contact_id = $1 AND case_type = $2`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, contactID, caseType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select by contact failed: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE contact_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, contactID)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE status = $1 ORDER BY created_at, id`
	return r.list(ctx, query, status)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Lead, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()
	var result []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan row: %w", err)
		}
		result = append(result, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: iterate rows: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, lead *Lead) error {
	query := `
		UPDATE leads
		SET status = $2,
			assigned_agent = NULLIF($3, ''),
			notes = NULLIF($4, ''),
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		lead.ID,
		lead.Status,
		lead.AssignedAgent,
		lead.Notes,
	).Scan(&lead.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLeadNotFound
		}
		return fmt.Errorf("leads: update failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("leads: delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// ReassignContact moves the duplicate's leads to the survivor. Leads whose
// case type the survivor already covers are dropped rather than duplicated.
func (r *PostgresRepository) ReassignContact(ctx context.Context, fromContactID, toContactID uuid.UUID) error {
	drop := `
		DELETE FROM leads
		WHERE contact_id = $1
		  AND case_type IN (SELECT case_type FROM leads WHERE contact_id = $2)
	`
	if _, err := r.pool.Exec(ctx, drop, fromContactID, toContactID); err != nil {
		return fmt.Errorf("leads: drop overlapping leads: %w", err)
	}
	move := `UPDATE leads SET contact_id = $2, updated_at = now() WHERE contact_id = $1`
	if _, err := r.pool.Exec(ctx, move, fromContactID, toContactID); err != nil {
		return fmt.Errorf("leads: reassign contact: %w", err)
	}
	return nil
}
