package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PublicationStatus represents the lifecycle status of a publication
type PublicationStatus string

const (
	PublicationStatusScheduled PublicationStatus = "scheduled"
	PublicationStatusPublished PublicationStatus = "published"
	PublicationStatusFailed    PublicationStatus = "failed"
	PublicationStatusDeleted   PublicationStatus = "deleted"
)

// String returns the string representation of the status
func (s PublicationStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s PublicationStatus) Valid() bool {
	switch s {
	case PublicationStatusScheduled, PublicationStatusPublished,
		PublicationStatusFailed, PublicationStatusDeleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further dispatch may touch this status.
// published is not terminal: the delete timer may still move it to deleted.
func (s PublicationStatus) Terminal() bool {
	return s == PublicationStatusFailed || s == PublicationStatusDeleted
}

// Scan implements the sql.Scanner interface for PublicationStatus
func (s *PublicationStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = PublicationStatus(v)
	case []byte:
		*s = PublicationStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into PublicationStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for PublicationStatus
func (s PublicationStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid PublicationStatus: %s", s)
	}
	return string(s), nil
}

// QueueRef points at a pending job in the delayed queue. A zero QueueRef
// means no live job of that kind exists for the publication.
type QueueRef struct {
	Queue string `gorm:"type:varchar(64)" json:"queue,omitempty"`
	JobID string `gorm:"type:varchar(64)" json:"job_id,omitempty"`
}

// IsZero reports whether the reference points at no job
func (r QueueRef) IsZero() bool {
	return r.JobID == ""
}

// Publication is one channel-specific scheduled delivery of a post template
type Publication struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PostID    uuid.UUID `gorm:"type:uuid;not null;index:idx_publications_post_id" json:"post_id"`
	ChannelID int64     `gorm:"not null;index:idx_publications_channel_id" json:"channel_id"`

	PublishAt time.Time  `gorm:"not null;index:idx_publications_publish_status,priority:1" json:"publish_at"`
	DeleteAt  *time.Time `json:"delete_at,omitempty"`

	Status      PublicationStatus `gorm:"type:publication_status;not null;default:'scheduled';index:idx_publications_publish_status,priority:2" json:"status"`
	TgMessageID *int64            `json:"tg_message_id,omitempty"`
	TopicID     *int64            `json:"topic_id,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`

	PublishJob QueueRef `gorm:"embedded;embeddedPrefix:publish_job_" json:"publish_job,omitempty"`
	DeleteJob  QueueRef `gorm:"embedded;embeddedPrefix:delete_job_" json:"delete_job,omitempty"`

	// One entry per failed or degraded dispatch attempt, oldest first
	AttemptErrors pq.StringArray `gorm:"type:text[]" json:"attempt_errors,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_publications_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Post    *Post    `gorm:"foreignKey:PostID;references:ID" json:"post,omitempty"`
	Channel *Channel `gorm:"foreignKey:ChannelID;references:ID" json:"channel,omitempty"`
}

// TableName returns the table name for the model
func (Publication) TableName() string {
	return "publications"
}

// BeforeCreate is called before creating a new record
func (p *Publication) BeforeCreate() error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PublicationStatusScheduled
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}
