package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BotStatus represents the operational status of a connected bot
type BotStatus string

const (
	BotStatusActive    BotStatus = "active"
	BotStatusRevoked   BotStatus = "revoked"
	BotStatusFloodWait BotStatus = "flood_wait"
)

// String returns the string representation of the status
func (s BotStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s BotStatus) Valid() bool {
	switch s {
	case BotStatusActive, BotStatusRevoked, BotStatusFloodWait:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for BotStatus
func (s *BotStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = BotStatus(v)
	case []byte:
		*s = BotStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BotStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BotStatus
func (s BotStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid BotStatus: %s", s)
	}
	return string(s), nil
}

// UserBot is an operator-connected Telegram bot. The Bot API token is held
// encrypted at rest; only the credential service may decrypt it.
type UserBot struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TelegramBotID  int64      `gorm:"uniqueIndex:uk_user_bots_telegram_bot_id;not null" json:"telegram_bot_id"`
	Username       string     `gorm:"type:varchar(255)" json:"username,omitempty"`
	TokenEncrypted string     `gorm:"type:text;not null" json:"-"`
	Status         BotStatus  `gorm:"type:bot_status;not null;default:'active'" json:"status"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_user_bots_user_id" json:"user_id"`
	CreatedAt      time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`

	// Relations
	User     *User     `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Channels []Channel `gorm:"foreignKey:OwnerBotID;references:ID" json:"channels,omitempty"`
}

// TableName returns the table name for the model
func (UserBot) TableName() string {
	return "user_bots"
}

// BeforeCreate is called before creating a new record
func (b *UserBot) BeforeCreate() error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BotStatusActive
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}
