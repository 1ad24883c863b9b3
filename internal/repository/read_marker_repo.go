package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaydesk/relay-go-api/internal/models"
)

// ReadMarkerRepository persists per-user read positions and answers unread
// queries. The bulk count variants run a single aggregate query each; the
// per-conversation round-trip loop is deliberately not offered.
type ReadMarkerRepository interface {
	Upsert(ctx context.Context, userID string, conversation models.Conversation, at time.Time) error
	Get(ctx context.Context, userID string, conversation models.Conversation) (models.ReadMarker, error)
	UnreadCount(ctx context.Context, userID string, conversation models.Conversation) (int64, error)
	ChannelUnreadCounts(ctx context.Context, userID string) (map[uint]int64, error)
	DirectUnreadCounts(ctx context.Context, userID string) (map[string]int64, error)
}

type readMarkerRepository struct {
	db *gorm.DB
}

// NewReadMarkerRepository constructs a GORM-backed read-marker repository.
func NewReadMarkerRepository(db *gorm.DB) ReadMarkerRepository {
	return &readMarkerRepository{db: db}
}

// Upsert writes the marker for (user, conversation). The conditional update
// keeps the marker monotonic: a timestamp older than the stored one is a
// silent no-op.
func (r *readMarkerRepository) Upsert(ctx context.Context, userID string, conversation models.Conversation, at time.Time) error {
	marker := models.ReadMarker{
		UserID:       userID,
		Conversation: conversation.String(),
		LastReadAt:   at,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "conversation"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_read_at": at,
			"updated_at":   at,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: "read_markers", Name: "last_read_at"}, Value: at},
		}},
	}).Create(&marker).Error
}

func (r *readMarkerRepository) Get(ctx context.Context, userID string, conversation models.Conversation) (models.ReadMarker, error) {
	var marker models.ReadMarker
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation = ?", userID, conversation.String()).
		First(&marker).Error
	if err != nil {
		return models.ReadMarker{}, err
	}
	return marker, nil
}

// UnreadCount counts messages newer than the marker, excluding the user's
// own. With no marker every foreign message counts.
func (r *readMarkerRepository) UnreadCount(ctx context.Context, userID string, conversation models.Conversation) (int64, error) {
	var since time.Time
	marker, err := r.Get(ctx, userID, conversation)
	switch {
	case err == nil:
		since = marker.LastReadAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No marker: unread is recomputed from scratch.
	default:
		return 0, err
	}

	var count int64
	if channelID, ok := conversation.ChannelID(); ok {
		query := r.db.WithContext(ctx).Model(&models.Message{}).
			Where("channel_id = ? AND sender_id <> ?", channelID, userID)
		if !since.IsZero() {
			query = query.Where("created_at > ?", since)
		}
		return count, query.Count(&count).Error
	}

	peer, ok := conversation.Peer(userID)
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	query := r.db.WithContext(ctx).Model(&models.DirectMessage{}).
		Where("sender_id = ? AND recipient_id = ?", peer, userID)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since)
	}
	return count, query.Count(&count).Error
}

type channelUnreadRow struct {
	ChannelID uint
	Unread    int64
}

// ChannelUnreadCounts aggregates unread counts for every channel the user is
// a member of in one query.
func (r *readMarkerRepository) ChannelUnreadCounts(ctx context.Context, userID string) (map[uint]int64, error) {
	var rows []channelUnreadRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT m.channel_id AS channel_id, COUNT(*) AS unread
		FROM messages m
		JOIN channel_members cm ON cm.channel_id = m.channel_id AND cm.user_id = ?
		LEFT JOIN read_markers r ON r.user_id = ? AND r.conversation = 'channel:' || m.channel_id
		WHERE m.sender_id <> ?
		  AND (r.last_read_at IS NULL OR m.created_at > r.last_read_at)
		GROUP BY m.channel_id`,
		userID, userID, userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.ChannelID] = row.Unread
	}
	return counts, nil
}

type directUnreadRow struct {
	SenderID string
	Unread   int64
}

// DirectUnreadCounts aggregates unread counts per DM peer in one query.
func (r *readMarkerRepository) DirectUnreadCounts(ctx context.Context, userID string) (map[string]int64, error) {
	var rows []directUnreadRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT dm.sender_id AS sender_id, COUNT(*) AS unread
		FROM direct_messages dm
		LEFT JOIN read_markers r ON r.user_id = ? AND r.conversation =
			CASE WHEN dm.sender_id < dm.recipient_id
			     THEN 'dm:' || dm.sender_id || ':' || dm.recipient_id
			     ELSE 'dm:' || dm.recipient_id || ':' || dm.sender_id END
		WHERE dm.recipient_id = ?
		  AND (r.last_read_at IS NULL OR dm.created_at > r.last_read_at)
		GROUP BY dm.sender_id`,
		userID, userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Unread
	}
	return counts, nil
}
