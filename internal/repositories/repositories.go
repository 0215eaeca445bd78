package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrAlreadyMember        = errors.New("identity already holds an active membership")
	ErrLastAdmin            = errors.New("conversation must retain at least one active admin")
	ErrInvalidReplyTarget   = errors.New("reply target is not a message of this conversation")
)

const conversationColumns = `c.id, c.kind, c.name, c.description, c.created_by, c.avatar_url, c.is_active,
        c.direct_key, c.settings, c.last_message_at, c.created_at, c.updated_at`

const memberColumns = `id, conversation_id, user_id, role, is_active, joined_at, last_read_at, is_muted,
        muted_until, unread_count`

const messageColumns = `id, conversation_id, sender_id, content, message_type, media_url, reply_to_id,
        is_edited, edited_at, is_deleted, deleted_at, metadata, created_at`

// now is the persistence clock. Microsecond precision matches Postgres timestamps.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// lockConversation takes the per-conversation write lock inside tx by touching the row.
// Postgres holds the row lock until commit; SQLite holds the database write lock.
func lockConversation(ctx context.Context, tx *sqlx.Tx, conversationID int64, at time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`), at, conversationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}
