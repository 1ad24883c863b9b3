package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/relaydesk/relay-go-api/internal/models"
)

const defaultHistoryLimit = 50

// MessageRepository persists channel messages, direct messages, and thread
// replies. Channel and direct messages live in separate tables with
// independent id sequences; thread-reply queries therefore carry a direct
// flag telling which namespace the parent id belongs to.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint) (models.Message, error)
	Update(ctx context.Context, message *models.Message) error
	DeleteCascade(ctx context.Context, id uint) error
	ListByChannel(ctx context.Context, channelID uint, before time.Time, limit int) ([]models.Message, error)
	ListPinned(ctx context.Context, channelID uint) ([]models.Message, error)
	SetPinned(ctx context.Context, id uint, pinned bool, at time.Time) (models.Message, error)

	CreateDirect(ctx context.Context, message *models.DirectMessage) error
	GetDirectByID(ctx context.Context, id uint) (models.DirectMessage, error)
	UpdateDirect(ctx context.Context, message *models.DirectMessage) error
	DeleteDirectCascade(ctx context.Context, id uint) error
	ListDirect(ctx context.Context, userA, userB string, before time.Time, limit int) ([]models.DirectMessage, error)

	CreateThreadReply(ctx context.Context, reply *models.ThreadMessage) error
	ListThreadReplies(ctx context.Context, parentID uint, direct bool) ([]models.ThreadMessage, error)
	CountThreadReplies(ctx context.Context, parentID uint, direct bool) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a GORM-backed message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) Update(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Save(message).Error
}

// DeleteCascade removes the message together with its reactions and thread
// replies. The cascade runs in one transaction and is never retried by
// callers; a partial failure is reported, not repeated.
func (r *messageRepository) DeleteCascade(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.MessageReaction{}).Error; err != nil {
			return err
		}
		// channel_id IS NOT NULL keeps replies under a direct message with the
		// same id out of the cascade.
		if err := tx.Where("parent_message_id = ? AND channel_id IS NOT NULL", id).Delete(&models.ThreadMessage{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Message{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListByChannel returns up to limit messages older than the cursor, in
// chronological ascending order. A zero cursor returns the newest page.
func (r *messageRepository) ListByChannel(ctx context.Context, channelID uint, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}

	query := r.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) ListPinned(ctx context.Context, channelID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND is_pinned = ?", channelID, true).
		Order("pinned_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// SetPinned flips the pin flag. Last write wins; concurrent togglers converge
// on whichever update lands last.
func (r *messageRepository) SetPinned(ctx context.Context, id uint, pinned bool, at time.Time) (models.Message, error) {
	updates := map[string]interface{}{"is_pinned": pinned}
	if pinned {
		updates["pinned_at"] = at
	} else {
		updates["pinned_at"] = nil
	}

	result := r.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return models.Message{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Message{}, gorm.ErrRecordNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *messageRepository) CreateDirect(ctx context.Context, message *models.DirectMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) GetDirectByID(ctx context.Context, id uint) (models.DirectMessage, error) {
	var message models.DirectMessage
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return models.DirectMessage{}, err
	}
	return message, nil
}

func (r *messageRepository) UpdateDirect(ctx context.Context, message *models.DirectMessage) error {
	return r.db.WithContext(ctx).Save(message).Error
}

// DeleteDirectCascade removes the direct message together with its thread
// replies, in one transaction.
func (r *messageRepository) DeleteDirectCascade(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_message_id = ? AND channel_id IS NULL", id).Delete(&models.ThreadMessage{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.DirectMessage{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *messageRepository) ListDirect(ctx context.Context, userA, userB string, before time.Time, limit int) ([]models.DirectMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}

	query := r.db.WithContext(ctx).Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		userA, userB, userB, userA,
	)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.DirectMessage
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) CreateThreadReply(ctx context.Context, reply *models.ThreadMessage) error {
	return r.db.WithContext(ctx).Create(reply).Error
}

func (r *messageRepository) ListThreadReplies(ctx context.Context, parentID uint, direct bool) ([]models.ThreadMessage, error) {
	var replies []models.ThreadMessage
	err := threadParentScope(r.db.WithContext(ctx), parentID, direct).
		Order("created_at ASC, id ASC").
		Find(&replies).Error
	if err != nil {
		return nil, err
	}
	return replies, nil
}

func (r *messageRepository) CountThreadReplies(ctx context.Context, parentID uint, direct bool) (int64, error) {
	var count int64
	err := threadParentScope(r.db.WithContext(ctx).Model(&models.ThreadMessage{}), parentID, direct).
		Count(&count).Error
	return count, err
}

// threadParentScope narrows a thread query to the parent's id namespace:
// replies under direct messages have no channel, replies under channel
// messages always do.
func threadParentScope(query *gorm.DB, parentID uint, direct bool) *gorm.DB {
	if direct {
		return query.Where("parent_message_id = ? AND channel_id IS NULL", parentID)
	}
	return query.Where("parent_message_id = ? AND channel_id IS NOT NULL", parentID)
}
