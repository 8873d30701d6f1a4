package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations and messages.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("conversations: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

const conversationColumns = `id, contact_id, status, funnel_type, funnel_stage, COALESCE(assigned_agent, ''),
	lead_id, is_answered, needs_response, last_message_at, first_response_at, last_response_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	if err := row.Scan(
		&c.ID,
		&c.ContactID,
		&c.Status,
		&c.FunnelType,
		&c.FunnelStage,
		&c.AssignedAgent,
		&c.LeadID,
		&c.IsAnswered,
		&c.NeedsResponse,
		&c.LastMessageAt,
		&c.FirstResponseAt,
		&c.LastResponseAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateActive inserts an active conversation unless the contact
// already has one. The partial unique index on (contact_id) WHERE
// status='active' makes concurrent creates collapse into one row; the
// losing insert falls through to the select.
func (s *PostgresStore) GetOrCreateActive(ctx context.Context, contactID uuid.UUID, seed FunnelType) (*Conversation, bool, error) {
	if seed == "" {
		seed = FunnelNone
	}
	insert := `
		INSERT INTO conversations (id, contact_id, status, funnel_type, funnel_stage, last_message_at)
		VALUES ($1, $2, 'active', $3, $4, now())
		ON CONFLICT (contact_id) WHERE status = 'active' DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, insert, uuid.New(), contactID, seed, InitialStage(seed))
	if err != nil {
		return nil, false, fmt.Errorf("conversations: get-or-create insert: %w", err)
	}
	conv, err := s.GetActive(ctx, contactID)
	if err != nil {
		return nil, false, err
	}
	return conv, ct.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetActive(ctx context.Context, contactID uuid.UUID) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE contact_id = $1 AND status = 'active'
		ORDER BY created_at, id
		LIMIT 1
	`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, contactID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversations: select active: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversations: select by id: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE status = 'active'
		ORDER BY last_message_at DESC NULLS LAST, id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("conversations: list active: %w", err)
	}
	defer rows.Close()
	var result []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversations: scan row: %w", err)
		}
		result = append(result, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversations: list active: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE contact_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("conversations: list by contact: %w", err)
	}
	defer rows.Close()
	var result []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversations: scan row: %w", err)
		}
		result = append(result, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversations: iterate rows: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) Update(ctx context.Context, conv *Conversation) error {
	query := `
		UPDATE conversations
		SET status = $2,
			funnel_type = $3,
			funnel_stage = $4,
			assigned_agent = NULLIF($5, ''),
			lead_id = $6,
			is_answered = $7,
			needs_response = $8,
			last_message_at = $9,
			first_response_at = $10,
			last_response_at = $11,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		conv.ID,
		conv.Status,
		conv.FunnelType,
		conv.FunnelStage,
		conv.AssignedAgent,
		conv.LeadID,
		conv.IsAnswered,
		conv.NeedsResponse,
		conv.LastMessageAt,
		conv.FirstResponseAt,
		conv.LastResponseAt,
	).Scan(&conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("conversations: update failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("conversations: delete failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) ReassignContact(ctx context.Context, conversationID, contactID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE conversations SET contact_id = $2, updated_at = now() WHERE id = $1`,
		conversationID, contactID)
	if err != nil {
		return fmt.Errorf("conversations: reassign contact: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// UpsertMessage is a single transactional insert-or-fetch on the unique
// external message id, so concurrent duplicate deliveries cannot race a
// read-then-write.
func (s *PostgresStore) UpsertMessage(ctx context.Context, msg *Message) (bool, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	insert := `
		INSERT INTO messages (id, conversation_id, external_message_id, sender_type, message_type, content, media_url, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (external_message_id) DO NOTHING
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, insert,
		msg.ID,
		msg.ConversationID,
		msg.ExternalMessageID,
		msg.SenderType,
		msg.MessageType,
		msg.Content,
		msg.MediaURL,
		msg.IsRead,
		msg.CreatedAt,
	).Scan(&msg.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("conversations: insert message: %w", err)
	}
	// Conflict: fetch the row a previous delivery created.
	existing, err := s.getMessageByExternalID(ctx, msg.ExternalMessageID)
	if err != nil {
		return false, err
	}
	*msg = *existing
	return false, nil
}

const messageColumns = `id, conversation_id, external_message_id, sender_type, message_type, content, COALESCE(media_url, ''), is_read, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.ExternalMessageID,
		&m.SenderType,
		&m.MessageType,
		&m.Content,
		&m.MediaURL,
		&m.IsRead,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) getMessageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE external_message_id = $1`
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("conversations: select message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversations: list messages: %w", err)
	}
	defer rows.Close()
	var result []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("conversations: scan message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversations: iterate messages: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) LatestMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("conversations: latest message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) LatestContactMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND sender_type = 'contact'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("conversations: latest contact message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) MigrateMessages(ctx context.Context, fromConversationID, toConversationID uuid.UUID) (int64, error) {
	ct, err := s.pool.Exec(ctx,
		`UPDATE messages SET conversation_id = $2 WHERE conversation_id = $1`,
		fromConversationID, toConversationID)
	if err != nil {
		return 0, fmt.Errorf("conversations: migrate messages: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, conversationID uuid.UUID, watermark time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = true
		WHERE conversation_id = $1 AND sender_type = 'contact' AND created_at <= $2
	`, conversationID, watermark)
	if err != nil {
		return fmt.Errorf("conversations: mark read: %w", err)
	}
	return nil
}
