package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an operator account. Authentication and session issuance live at
// the HTTP boundary; the dispatch engine only needs the ownership chain
// user -> bot -> channel.
type User struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TelegramUserID int64      `gorm:"uniqueIndex:uk_users_telegram_user_id;not null" json:"telegram_user_id"`
	Username       string     `gorm:"type:varchar(255)" json:"username,omitempty"`
	FirstName      string     `gorm:"type:varchar(255)" json:"first_name,omitempty"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`

	// Relations
	Bots []UserBot `gorm:"foreignKey:UserID;references:ID" json:"bots,omitempty"`
}

// TableName returns the table name for the model
func (User) TableName() string {
	return "users"
}

// BeforeCreate is called before creating a new record
func (u *User) BeforeCreate() error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return nil
}
