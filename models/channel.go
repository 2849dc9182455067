package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a Telegram channel or group administered by one of the
// operator's bots. The primary key is the Telegram chat id, not a UUID.
type Channel struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"type:varchar(255)" json:"title,omitempty"`
	PhotoURL     string     `gorm:"type:varchar(512)" json:"photo_url,omitempty"`
	MembersCount int        `gorm:"not null;default:0" json:"members_count"`
	IsActive     bool       `gorm:"not null;default:true;index:idx_channels_is_active" json:"is_active"`
	IsForum      bool       `gorm:"not null;default:false" json:"is_forum"`
	LinkedChatID *int64     `json:"linked_chat_id,omitempty"`
	OwnerBotID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_channels_owner_bot_id" json:"owner_bot_id"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`

	// Relations
	Bot *UserBot `gorm:"foreignKey:OwnerBotID;references:ID" json:"bot,omitempty"`
}

// TableName returns the table name for the model
func (Channel) TableName() string {
	return "channels"
}

// ResolveTarget returns the chat id a message for this channel must be sent
// to. Forum-enabled chats receive the message themselves (into the topic);
// otherwise a topic-targeted message goes to the linked discussion group.
func (c *Channel) ResolveTarget(topicID *int64) int64 {
	if c.IsForum {
		return c.ID
	}
	if topicID != nil && c.LinkedChatID != nil {
		return *c.LinkedChatID
	}
	return c.ID
}
