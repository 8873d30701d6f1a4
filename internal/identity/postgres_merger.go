package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// TxBeginner is the subset of pgxpool.Pool the merger needs.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresMerger runs the whole merge in one transaction so a crash
// mid-merge never leaves messages orphaned.
type PostgresMerger struct {
	pool   TxBeginner
	logger *logging.Logger
}

// NewPostgresMerger initializes the transactional merger.
func NewPostgresMerger(pool TxBeginner, logger *logging.Logger) *PostgresMerger {
	if pool == nil {
		panic("identity: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresMerger{pool: pool, logger: logger}
}

func (m *PostgresMerger) Merge(ctx context.Context, survivorID, duplicateID uuid.UUID) error {
	if survivorID == duplicateID {
		return nil
	}
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("identity: merge begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both contacts in id order so concurrent merges of the same
	// pair cannot deadlock.
	rows, err := tx.Query(ctx,
		`SELECT id FROM contacts WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`,
		survivorID, duplicateID)
	if err != nil {
		return fmt.Errorf("identity: merge lock contacts: %w", err)
	}
	locked := make(map[uuid.UUID]bool, 2)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("identity: merge scan lock: %w", err)
		}
		locked[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("identity: merge lock rows: %w", err)
	}
	if !locked[duplicateID] {
		// Already merged.
		return nil
	}
	if !locked[survivorID] {
		return fmt.Errorf("identity: merge survivor %s not found", survivorID)
	}

	survivorConv, err := activeConversationID(ctx, tx, survivorID)
	if err != nil {
		return err
	}
	duplicateConv, err := activeConversationID(ctx, tx, duplicateID)
	if err != nil {
		return err
	}

	if survivorConv != uuid.Nil && duplicateConv != uuid.Nil {
		if _, err := tx.Exec(ctx,
			`UPDATE messages SET conversation_id = $2 WHERE conversation_id = $1`,
			duplicateConv, survivorConv); err != nil {
			return fmt.Errorf("identity: merge migrate messages: %w", err)
		}
		// GREATEST ignores NULLs, so the later of the two stamps wins.
		if _, err := tx.Exec(ctx, `
			UPDATE conversations
			SET last_message_at = GREATEST(last_message_at,
					(SELECT last_message_at FROM conversations WHERE id = $2)),
				updated_at = now()
			WHERE id = $1
		`, survivorConv, duplicateConv); err != nil {
			return fmt.Errorf("identity: merge update survivor conversation: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM conversations WHERE id = $1`, duplicateConv); err != nil {
			return fmt.Errorf("identity: merge delete duplicate conversation: %w", err)
		}
	}

	// Everything left (closed history, or the active one when the
	// survivor had none) moves wholesale.
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET contact_id = $2, updated_at = now() WHERE contact_id = $1`,
		duplicateID, survivorID); err != nil {
		return fmt.Errorf("identity: merge reassign conversations: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM leads
		WHERE contact_id = $1
		  AND case_type IN (SELECT case_type FROM leads WHERE contact_id = $2)
	`, duplicateID, survivorID); err != nil {
		return fmt.Errorf("identity: merge drop overlapping leads: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE leads SET contact_id = $2, updated_at = now() WHERE contact_id = $1`,
		duplicateID, survivorID); err != nil {
		return fmt.Errorf("identity: merge reassign leads: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, duplicateID); err != nil {
		return fmt.Errorf("identity: merge delete duplicate contact: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("identity: merge commit: %w", err)
	}
	m.logger.Info("contacts merged", "survivor", survivorID, "duplicate", duplicateID)
	return nil
}

func activeConversationID(ctx context.Context, tx pgx.Tx, contactID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE contact_id = $1 AND status = 'active'
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE
	`, contactID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("identity: merge active conversation lookup: %w", err)
	}
	return id, nil
}
