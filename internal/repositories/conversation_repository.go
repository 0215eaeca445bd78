package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
)

// ConversationRepository abstracts conversation and membership persistence.
type ConversationRepository interface {
	CreateDirect(ctx context.Context, userID, peerID int64) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, creatorID int64, group models.NewGroup) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error)
	GetMembership(ctx context.Context, conversationID, userID int64) (models.Membership, error)
	ListMembers(ctx context.Context, conversationID int64) ([]models.Membership, error)
	ActiveMemberIDs(ctx context.Context, conversationID int64) ([]int64, error)
	AddMember(ctx context.Context, conversationID, userID int64, role models.Role) (models.Membership, error)
	RemoveMember(ctx context.Context, conversationID, userID int64) (models.RemovalResult, error)
	UpdateRole(ctx context.Context, conversationID, userID int64, role models.Role) (models.Membership, error)
	SetMute(ctx context.Context, conversationID, userID int64, muted bool, until *time.Time) (models.Membership, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]models.ConversationSummary, error)
	ContactIDs(ctx context.Context, userID int64) ([]int64, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateDirect returns the direct conversation for the unordered pair, creating it if needed.
// The canonical direct_key unique constraint makes concurrent creation resolve to one row.
// The boolean result reports whether a new conversation was inserted.
func (r *ConversationRepo) CreateDirect(ctx context.Context, userID, peerID int64) (models.Conversation, bool, error) {
	key := models.DirectKey(userID, peerID)
	var (
		conv    models.Conversation
		created bool
	)

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		at := now()
		var id int64
		err := tx.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO conversations
            (kind, created_by, is_active, direct_key, settings, created_at, updated_at)
            VALUES (?, ?, TRUE, ?, ?, ?, ?)
            ON CONFLICT (direct_key) DO NOTHING
            RETURNING id`), models.KindDirect, userID, key, models.JSONMap{}, at, at).Scan(&id)

		switch {
		case err == nil:
			created = true
			for _, uid := range []int64{userID, peerID} {
				if err := r.insertMember(ctx, tx, id, uid, models.RoleAdmin, at); err != nil {
					return err
				}
			}
		case errors.Is(err, sql.ErrNoRows):
			if err := tx.GetContext(ctx, &id, r.db.Rebind(`SELECT id FROM conversations WHERE direct_key = ?`), key); err != nil {
				return err
			}
			if err := r.reactivateDirect(ctx, tx, id, userID, peerID, at); err != nil {
				return err
			}
		default:
			return err
		}

		return r.loadConversation(ctx, tx, id, &conv)
	})
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, created, nil
}

// reactivateDirect makes sure the direct conversation and both participants' memberships are active.
// A participant who had left rejoins as admin with a fresh read state. Active rows are untouched.
func (r *ConversationRepo) reactivateDirect(ctx context.Context, tx *sqlx.Tx, conversationID, userID, peerID int64, at time.Time) error {
	if err := lockConversation(ctx, tx, conversationID, at); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversations SET is_active = TRUE
        WHERE id = ? AND is_active = FALSE`), conversationID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversation_members
        SET is_active = TRUE, role = ?, joined_at = ?, unread_count = 0, last_read_at = NULL
        WHERE conversation_id = ? AND user_id IN (?, ?) AND is_active = FALSE`),
		models.RoleAdmin, at, conversationID, userID, peerID)
	return err
}

// CreateGroup creates a group and its memberships atomically. The creator becomes the sole admin.
func (r *ConversationRepo) CreateGroup(ctx context.Context, creatorID int64, group models.NewGroup) (models.Conversation, error) {
	var conv models.Conversation
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		at := now()
		settings := group.Settings
		if settings == nil {
			settings = models.JSONMap{}
		}

		var id int64
		if err := tx.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO conversations
            (kind, name, description, created_by, avatar_url, is_active, settings, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, TRUE, ?, ?, ?)
            RETURNING id`), models.KindGroup, group.Name, group.Description, creatorID, group.AvatarURL, settings, at, at).
			Scan(&id); err != nil {
			return err
		}

		if err := r.insertMember(ctx, tx, id, creatorID, models.RoleAdmin, at); err != nil {
			return err
		}
		for _, uid := range uniqueOthers(creatorID, group.MemberIDs) {
			if err := r.insertMember(ctx, tx, id, uid, models.RoleMember, at); err != nil {
				return err
			}
		}

		return r.loadConversation(ctx, tx, id, &conv)
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches a conversation with its active members.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	if err := r.loadConversation(ctx, r.db, conversationID, &conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetMembership fetches the membership row for the pair, active or not.
func (r *ConversationRepo) GetMembership(ctx context.Context, conversationID, userID int64) (models.Membership, error) {
	return r.getMembership(ctx, r.db, conversationID, userID)
}

// ListMembers returns the active members in join order.
func (r *ConversationRepo) ListMembers(ctx context.Context, conversationID int64) ([]models.Membership, error) {
	return r.activeMembers(ctx, r.db, conversationID)
}

// ActiveMemberIDs returns the identities holding an active membership.
func (r *ConversationRepo) ActiveMemberIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT user_id FROM conversation_members
        WHERE conversation_id = ? AND is_active = TRUE ORDER BY user_id`), conversationID)
	return ids, err
}

// AddMember creates or reactivates a membership. An active membership yields ErrAlreadyMember.
func (r *ConversationRepo) AddMember(ctx context.Context, conversationID, userID int64, role models.Role) (models.Membership, error) {
	var member models.Membership
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		at := now()
		if err := lockConversation(ctx, tx, conversationID, at); err != nil {
			return err
		}

		existing, err := r.getMembership(ctx, tx, conversationID, userID)
		switch {
		case err == nil && existing.IsActive:
			return ErrAlreadyMember
		case err == nil:
			if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversation_members
                SET is_active = TRUE, role = ?, joined_at = ?, last_read_at = NULL, unread_count = 0,
                    is_muted = FALSE, muted_until = NULL
                WHERE id = ?`), role, at, existing.ID); err != nil {
				return err
			}
		case errors.Is(err, ErrMembershipNotFound):
			if err := r.insertMember(ctx, tx, conversationID, userID, role, at); err != nil {
				return err
			}
		default:
			return err
		}

		member, err = r.getMembership(ctx, tx, conversationID, userID)
		return err
	})
	return member, err
}

// RemoveMember deactivates a membership under the conversation lock. Removing the last active admin
// while other members remain fails with ErrLastAdmin; removing the last member deactivates the
// conversation.
func (r *ConversationRepo) RemoveMember(ctx context.Context, conversationID, userID int64) (models.RemovalResult, error) {
	var result models.RemovalResult
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		at := now()
		if err := lockConversation(ctx, tx, conversationID, at); err != nil {
			return err
		}

		members, err := r.activeMembers(ctx, tx, conversationID)
		if err != nil {
			return err
		}

		var target *models.Membership
		admins := 0
		remaining := make([]int64, 0, len(members))
		for i := range members {
			if members[i].UserID == userID {
				target = &members[i]
				continue
			}
			remaining = append(remaining, members[i].UserID)
			if members[i].Role == models.RoleAdmin {
				admins++
			}
		}
		if target == nil {
			return ErrMembershipNotFound
		}
		if len(remaining) > 0 && target.Role == models.RoleAdmin && admins == 0 {
			return ErrLastAdmin
		}

		if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversation_members
            SET is_active = FALSE, unread_count = 0 WHERE id = ?`), target.ID); err != nil {
			return err
		}
		if len(remaining) == 0 {
			if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversations SET is_active = FALSE WHERE id = ?`), conversationID); err != nil {
				return err
			}
			result.ConversationDeactivated = true
		}
		result.RemainingMemberIDs = remaining
		return nil
	})
	return result, err
}

// UpdateRole changes a member's role. Demoting the last active admin fails with ErrLastAdmin.
func (r *ConversationRepo) UpdateRole(ctx context.Context, conversationID, userID int64, role models.Role) (models.Membership, error) {
	var member models.Membership
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockConversation(ctx, tx, conversationID, now()); err != nil {
			return err
		}

		members, err := r.activeMembers(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		var target *models.Membership
		admins := 0
		for i := range members {
			if members[i].Role == models.RoleAdmin {
				admins++
			}
			if members[i].UserID == userID {
				target = &members[i]
			}
		}
		if target == nil {
			return ErrMembershipNotFound
		}
		if target.Role == models.RoleAdmin && role != models.RoleAdmin && admins == 1 {
			return ErrLastAdmin
		}

		if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE conversation_members SET role = ? WHERE id = ?`), role, target.ID); err != nil {
			return err
		}
		member, err = r.getMembership(ctx, tx, conversationID, userID)
		return err
	})
	return member, err
}

// SetMute updates the caller's mute preference on an active membership.
func (r *ConversationRepo) SetMute(ctx context.Context, conversationID, userID int64, muted bool, until *time.Time) (models.Membership, error) {
	if !muted {
		until = nil
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE conversation_members SET is_muted = ?, muted_until = ?
        WHERE conversation_id = ? AND user_id = ? AND is_active = TRUE`), muted, until, conversationID, userID)
	if err != nil {
		return models.Membership{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Membership{}, err
	}
	if n == 0 {
		return models.Membership{}, ErrMembershipNotFound
	}
	return r.getMembership(ctx, r.db, conversationID, userID)
}

// ListForUser returns the caller's active conversations, most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]models.ConversationSummary, error) {
	query := `SELECT ` + conversationColumns + `,
            m.role AS my_role, m.unread_count AS my_unread_count, m.is_muted AS my_is_muted
        FROM conversations c
        INNER JOIN conversation_members m ON m.conversation_id = c.id
        WHERE m.user_id = ? AND m.is_active = TRUE AND c.is_active = TRUE
        ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
        LIMIT ? OFFSET ?`
	summaries := []models.ConversationSummary{}
	err := r.db.SelectContext(ctx, &summaries, r.db.Rebind(query), userID, limit, offset)
	return summaries, err
}

// ContactIDs returns every identity sharing at least one active conversation with userID.
func (r *ConversationRepo) ContactIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT DISTINCT other.user_id
        FROM conversation_members me
        INNER JOIN conversation_members other
            ON other.conversation_id = me.conversation_id AND other.user_id <> me.user_id AND other.is_active = TRUE
        INNER JOIN conversations c ON c.id = me.conversation_id AND c.is_active = TRUE
        WHERE me.user_id = ? AND me.is_active = TRUE
        ORDER BY other.user_id`), userID)
	return ids, err
}

func (r *ConversationRepo) insertMember(ctx context.Context, tx *sqlx.Tx, conversationID, userID int64, role models.Role, at time.Time) error {
	_, err := tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO conversation_members
        (conversation_id, user_id, role, is_active, joined_at, is_muted, unread_count)
        VALUES (?, ?, ?, TRUE, ?, FALSE, 0)`), conversationID, userID, role, at)
	return err
}

func (r *ConversationRepo) loadConversation(ctx context.Context, q sqlx.QueryerContext, conversationID int64, conv *models.Conversation) error {
	err := sqlx.GetContext(ctx, q, conv, r.db.Rebind(`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`), conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConversationNotFound
	}
	if err != nil {
		return err
	}
	conv.Members, err = r.activeMembers(ctx, q, conversationID)
	return err
}

func (r *ConversationRepo) activeMembers(ctx context.Context, q sqlx.QueryerContext, conversationID int64) ([]models.Membership, error) {
	members := []models.Membership{}
	err := sqlx.SelectContext(ctx, q, &members, r.db.Rebind(`SELECT `+memberColumns+` FROM conversation_members
        WHERE conversation_id = ? AND is_active = TRUE ORDER BY joined_at, id`), conversationID)
	return members, err
}

func (r *ConversationRepo) getMembership(ctx context.Context, q sqlx.QueryerContext, conversationID, userID int64) (models.Membership, error) {
	var member models.Membership
	err := sqlx.GetContext(ctx, q, &member, r.db.Rebind(`SELECT `+memberColumns+` FROM conversation_members
        WHERE conversation_id = ? AND user_id = ?`), conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return member, err
}

// uniqueOthers dedupes ids, drops self, and sorts for a stable insert order.
func uniqueOthers(self int64, ids []int64) []int64 {
	seen := map[int64]struct{}{self: {}}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
