package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
)

// MessageRepository abstracts message persistence and read-state bookkeeping.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, messageID int64) (models.Message, error)
	List(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error)
	Latest(ctx context.Context, conversationIDs []int64) (map[int64]models.Message, error)
	UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID int64) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, userID int64) error
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create persists msg and updates conversation activity and unread counters in one transaction.
// The sender's membership is re-checked under the conversation lock, so a message never lands
// after its author was removed. msg.ID and msg.CreatedAt are filled on success.
func (r *MessageRepo) Create(ctx context.Context, msg *models.Message) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		at := now()
		res, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversations SET last_message_at = ?, updated_at = ?
            WHERE id = ? AND is_active = TRUE`), at, at, msg.ConversationID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrConversationNotFound
		}

		var active bool
		err = tx.GetContext(ctx, &active, r.db.Rebind(`SELECT is_active FROM conversation_members
            WHERE conversation_id = ? AND user_id = ?`), msg.ConversationID, msg.SenderID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
			return ErrMembershipNotFound
		}
		if err != nil {
			return err
		}

		if msg.ReplyToID != nil {
			var replyConversation int64
			err := tx.GetContext(ctx, &replyConversation, r.db.Rebind(`SELECT conversation_id FROM messages WHERE id = ?`), *msg.ReplyToID)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && replyConversation != msg.ConversationID) {
				return ErrInvalidReplyTarget
			}
			if err != nil {
				return err
			}
		}

		if msg.Metadata == nil {
			msg.Metadata = models.JSONMap{}
		}
		msg.CreatedAt = at
		if err := tx.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO messages
            (conversation_id, sender_id, content, message_type, media_url, reply_to_id, is_edited, is_deleted, metadata, created_at)
            VALUES (?, ?, ?, ?, ?, ?, FALSE, FALSE, ?, ?)
            RETURNING id`),
			msg.ConversationID, msg.SenderID, msg.Content, msg.Type, msg.MediaURL, msg.ReplyToID, msg.Metadata, at).
			Scan(&msg.ID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversation_members SET unread_count = unread_count + 1
            WHERE conversation_id = ? AND user_id <> ? AND is_active = TRUE`), msg.ConversationID, msg.SenderID)
		return err
	})
}

// Get fetches a message by ID.
func (r *MessageRepo) Get(ctx context.Context, messageID int64) (models.Message, error) {
	return r.get(ctx, r.db, messageID)
}

// List returns one page of history. offset counts back from the newest message and the page is
// returned oldest first.
func (r *MessageRepo) List(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ? OFFSET ?`), conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Latest returns the newest message of each conversation, keyed by conversation ID.
func (r *MessageRepo) Latest(ctx context.Context, conversationIDs []int64) (map[int64]models.Message, error) {
	out := make(map[int64]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages
        WHERE id IN (SELECT MAX(id) FROM messages WHERE conversation_id IN (?) GROUP BY conversation_id)`, conversationIDs)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ConversationID] = m
	}
	return out, nil
}

// UpdateContent replaces the text of a message and flags it as edited.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int64, content string) (models.Message, error) {
	var msg models.Message
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET content = ?, is_edited = TRUE, edited_at = ?
            WHERE id = ? AND is_deleted = FALSE`), content, now(), messageID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrMessageNotFound
		}
		msg, err = r.get(ctx, tx, messageID)
		return err
	})
	return msg, err
}

// SoftDelete hides a message's content behind the deletion marker. The row is kept for history.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE messages
            SET content = ?, media_url = NULL, metadata = ?, is_deleted = TRUE, deleted_at = ?
            WHERE id = ? AND is_deleted = FALSE`), models.DeletedMessageMarker, models.JSONMap{}, now(), messageID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrMessageNotFound
		}
		msg, err = r.get(ctx, tx, messageID)
		return err
	})
	return msg, err
}

// MarkRead resets the member's unread counter and stamps last_read_at.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, userID int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE conversation_members SET unread_count = 0, last_read_at = ?
        WHERE conversation_id = ? AND user_id = ? AND is_active = TRUE`), now(), conversationID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func (r *MessageRepo) get(ctx context.Context, q sqlx.QueryerContext, messageID int64) (models.Message, error) {
	var msg models.Message
	err := sqlx.GetContext(ctx, q, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
