package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaydesk/relay-go-api/internal/models"
)

// ReactionRepository persists emoji reactions on messages.
type ReactionRepository interface {
	Toggle(ctx context.Context, messageID uint, userID, emoji string) (bool, error)
	ListByMessage(ctx context.Context, messageID uint) ([]models.MessageReaction, error)
	CountByMessage(ctx context.Context, messageID uint, emoji string) (int64, error)
}

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository constructs a GORM-backed reaction repository.
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

// Toggle removes the (message, user, emoji) row if present, otherwise inserts
// it. The unique index serializes concurrent toggles: a racing insert that
// loses the constraint is treated as success since the row exists either way.
func (r *reactionRepository) Toggle(ctx context.Context, messageID uint, userID, emoji string) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where(
			"message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji,
		).Delete(&models.MessageReaction{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			applied = false
			return nil
		}

		reaction := models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *reactionRepository) ListByMessage(ctx context.Context, messageID uint) ([]models.MessageReaction, error) {
	var reactions []models.MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC, id ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}

func (r *reactionRepository) CountByMessage(ctx context.Context, messageID uint, emoji string) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.MessageReaction{}).Where("message_id = ?", messageID)
	if emoji != "" {
		query = query.Where("emoji = ?", emoji)
	}
	err := query.Count(&count).Error
	return count, err
}
