package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidmahub/khidmahub/internal/fault"
)

// PgStore persists notifications in Postgres. Context is stored as JSONB.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const notificationColumns = `id, recipient_kind, recipient_id, actor_id, verb,
	message, short_message, level, requires_action, action_taken,
	action_taken_at, context, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n       Notification
		ctxJSON []byte
	)
	err := row.Scan(
		&n.ID, &n.Recipient.Kind, &n.Recipient.ID, &n.ActorID, &n.Verb,
		&n.Message, &n.ShortMessage, &n.Level, &n.RequiresAction, &n.ActionTaken,
		&n.ActionTakenAt, &ctxJSON, &n.Read, &n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		return Notification{}, err
	}
	if len(ctxJSON) > 0 {
		var c Context
		if err := json.Unmarshal(ctxJSON, &c); err != nil {
			return Notification{}, fmt.Errorf("decode notification context: %w", err)
		}
		n.Context = &c
	}
	return n, nil
}

func (s *PgStore) Create(ctx context.Context, n *Notification) error {
	var ctxJSON []byte
	if n.Context != nil {
		b, err := json.Marshal(n.Context)
		if err != nil {
			return fmt.Errorf("encode notification context: %w", err)
		}
		ctxJSON = b
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_kind, recipient_id, actor_id, verb,
			message, short_message, level, requires_action, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.Recipient.Kind, n.Recipient.ID, n.ActorID, n.Verb,
		n.Message, n.ShortMessage, n.Level, n.RequiresAction, ctxJSON, n.CreatedAt,
	)
	return err
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (Notification, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, fault.NotFoundf("notification %s not found", id)
	}
	return n, err
}

func (s *PgStore) ListByRecipient(ctx context.Context, r Recipient, f ListFilter) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_kind = $1 AND recipient_id = $2`
	args := []any{r.Kind, r.ID}
	if f.UnreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PgStore) CountUnread(ctx context.Context, r Recipient) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_kind = $1 AND recipient_id = $2 AND NOT is_read`,
		r.Kind, r.ID,
	).Scan(&n)
	return n, err
}

func (s *PgStore) MarkRead(ctx context.Context, r Recipient, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND recipient_kind = $2 AND recipient_id = $3 AND NOT is_read`,
		id, r.Kind, r.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, r, id)
	}
	return nil
}

func (s *PgStore) MarkAllRead(ctx context.Context, r Recipient) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE recipient_kind = $1 AND recipient_id = $2 AND NOT is_read`,
		r.Kind, r.ID,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgStore) RecordAction(ctx context.Context, r Recipient, id uuid.UUID, action ActionTaken) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET action_taken = $4, action_taken_at = NOW(), is_read = TRUE,
			read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND recipient_kind = $2 AND recipient_id = $3
			AND requires_action AND action_taken IS NULL`,
		id, r.Kind, r.ID, action,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		n, err := s.Get(ctx, id)
		if err != nil || n.Recipient != r {
			return fault.NotFoundf("notification %s not found", id)
		}
		if !n.RequiresAction {
			return fault.StateConflictf("notification %s does not expect an action", id)
		}
		return fault.StateConflictf("notification %s was already resolved", id)
	}
	return nil
}

// classifyMiss separates "not yours / missing" from "already read".
func (s *PgStore) classifyMiss(ctx context.Context, r Recipient, id uuid.UUID) error {
	n, err := s.Get(ctx, id)
	if err != nil || n.Recipient != r {
		return fault.NotFoundf("notification %s not found", id)
	}
	// Already read: marking again is a no-op.
	return nil
}

var _ Store = (*PgStore)(nil)
