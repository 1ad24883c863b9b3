package models

import (
	"time"

	"gorm.io/datatypes"
)

// Channel member roles.
const (
	ChannelRoleMember    = "member"
	ChannelRoleModerator = "moderator"
	ChannelRoleOwner     = "owner"
)

// Channel represents a shared, named conversation scoped to an organization.
type Channel struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"size:50;not null" json:"name"`
	Description    string            `gorm:"size:200" json:"description"`
	IsPrivate      bool              `gorm:"not null;default:false" json:"is_private"`
	OrganizationID string            `gorm:"size:64;index" json:"organization_id"`
	CreatedBy      string            `gorm:"size:64;index" json:"created_by"`
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ChannelMember links a user to a channel with a capability role.
type ChannelMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChannelID uint      `gorm:"index:idx_channel_member,unique;not null" json:"channel_id"`
	UserID    string    `gorm:"size:64;index:idx_channel_member,unique;not null" json:"user_id"`
	Role      string    `gorm:"size:16;not null;default:member" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CanModerate reports whether the member may perform destructive channel
// operations such as deleting the channel.
func (m ChannelMember) CanModerate() bool {
	return m.Role == ChannelRoleModerator || m.Role == ChannelRoleOwner
}
