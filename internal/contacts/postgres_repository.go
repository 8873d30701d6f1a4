package contacts

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

// PostgresRepository stores contacts in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("contacts: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const contactColumns = `id, channel, external_id, display_name, COALESCE(phone, ''), COALESCE(country, ''), needs_review, created_at, updated_at`

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	if err := row.Scan(
		&c.ID,
		&c.Channel,
		&c.ExternalID,
		&c.DisplayName,
		&c.Phone,
		&c.Country,
		&c.NeedsReview,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, contact *Contact) error {
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	query := `
		INSERT INTO contacts (id, channel, external_id, display_name, phone, country, needs_review)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		contact.ID,
		contact.Channel,
		contact.ExternalID,
		contact.DisplayName,
		contact.Phone,
		contact.Country,
		contact.NeedsReview,
	).Scan(&contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		if isUniquePhoneViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("contacts: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	contact, err := scanContact(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("contacts: select by id: %w", err)
	}
	return contact, nil
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, channel Channel, externalID string) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE channel = $1 AND external_id = $2`
	contact, err := scanContact(r.pool.QueryRow(ctx, query, channel, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("contacts: select by external id: %w", err)
	}
	return contact, nil
}

func (r *PostgresRepository) GetByPhone(ctx context.Context, channel Channel, canonicalPhone string) (*Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE channel = $1 AND phone = $2
		ORDER BY created_at, id
		LIMIT 1
	`
	contact, err := scanContact(r.pool.QueryRow(ctx, query, channel, canonicalPhone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("contacts: select by phone: %w", err)
	}
	return contact, nil
}

func (r *PostgresRepository) ListByPhone(ctx context.Context, channel Channel, canonicalPhone string) ([]*Contact, error) {
	if canonicalPhone == "" {
		return nil, nil
	}
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE channel = $1 AND phone = $2
		ORDER BY created_at, id
	`
	return r.list(ctx, query, channel, canonicalPhone)
}

func (r *PostgresRepository) ListLegacyPlaceholders(ctx context.Context, channel Channel) ([]*Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE channel = $1 AND external_id LIKE $2
		ORDER BY created_at, id
	`
	return r.list(ctx, query, channel, LegacyPlaceholderPrefix+"%")
}

func (r *PostgresRepository) ListByChannel(ctx context.Context, channel Channel) ([]*Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE channel = $1
		ORDER BY created_at, id
	`
	return r.list(ctx, query, channel)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Contact, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("contacts: list: %w", err)
	}
	defer rows.Close()
	var result []*Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("contacts: scan row: %w", err)
		}
		result = append(result, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: iterate rows: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, contact *Contact) error {
	query := `
		UPDATE contacts
		SET external_id = $2,
			display_name = $3,
			phone = NULLIF($4, ''),
			country = NULLIF($5, ''),
			needs_review = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		contact.ID,
		contact.ExternalID,
		contact.DisplayName,
		contact.Phone,
		contact.Country,
		contact.NeedsReview,
	).Scan(&contact.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrContactNotFound
		}
		if isUniquePhoneViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("contacts: update failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("contacts: delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

func isUniquePhoneViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "contacts_channel_phone_key"
}
