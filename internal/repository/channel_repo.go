package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/relaydesk/relay-go-api/internal/models"
)

// ChannelRepository persists channels and their memberships.
type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id uint) (models.Channel, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]models.Channel, error)
	DeleteCascade(ctx context.Context, id uint) error
	AddMember(ctx context.Context, member *models.ChannelMember) error
	GetMember(ctx context.Context, channelID uint, userID string) (models.ChannelMember, error)
	RemoveMember(ctx context.Context, channelID uint, userID string) error
}

type channelRepository struct {
	db *gorm.DB
}

// NewChannelRepository constructs a GORM-backed channel repository.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) Create(ctx context.Context, channel *models.Channel) error {
	return r.db.WithContext(ctx).Create(channel).Error
}

func (r *channelRepository) GetByID(ctx context.Context, id uint) (models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).First(&channel, id).Error; err != nil {
		return models.Channel{}, err
	}
	return channel, nil
}

func (r *channelRepository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Channel, error) {
	var channels []models.Channel
	query := r.db.WithContext(ctx).Order("name ASC")
	if organizationID != "" {
		query = query.Where("organization_id = ?", organizationID)
	}
	if err := query.Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// DeleteCascade removes the channel together with its messages, thread
// replies, reactions, read markers, and memberships in one transaction.
// Partial failures roll the whole cascade back so it is never half-applied.
func (r *channelRepository) DeleteCascade(ctx context.Context, id uint) error {
	conversation := models.ChannelConversation(id).String()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messageIDs := tx.Model(&models.Message{}).Select("id").Where("channel_id = ?", id)

		if err := tx.Where("message_id IN (?)", messageIDs).Delete(&models.MessageReaction{}).Error; err != nil {
			return err
		}
		// Replies carry the channel id themselves; matching on parent ids
		// would also sweep direct-message threads with colliding ids.
		if err := tx.Where("channel_id = ?", id).Delete(&models.ThreadMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation = ?", conversation).Delete(&models.ReadMarker{}).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&models.ChannelMember{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Channel{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *channelRepository) AddMember(ctx context.Context, member *models.ChannelMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *channelRepository) GetMember(ctx context.Context, channelID uint, userID string) (models.ChannelMember, error) {
	var member models.ChannelMember
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&member).Error
	if err != nil {
		return models.ChannelMember{}, err
	}
	return member, nil
}

func (r *channelRepository) RemoveMember(ctx context.Context, channelID uint, userID string) error {
	return r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Delete(&models.ChannelMember{}).Error
}
