package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/telepost/telepost/models"
)

// PublicationDTO is the wire form of a scheduled publication
type PublicationDTO struct {
	ID            string     `json:"id"`
	PostID        string     `json:"post_id"`
	ChannelID     int64      `json:"channel_id"`
	Status        string     `json:"status"`
	PublishAt     time.Time  `json:"publish_at"`
	DeleteAt      *time.Time `json:"delete_at,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	TgMessageID   *int64     `json:"tg_message_id,omitempty"`
	TopicID       *int64     `json:"topic_id,omitempty"`
	AttemptErrors []string   `json:"attempt_errors,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToPublicationDTO converts a publication model to its wire form
func ToPublicationDTO(pub *models.Publication) PublicationDTO {
	return PublicationDTO{
		ID:            pub.ID.String(),
		PostID:        pub.PostID.String(),
		ChannelID:     pub.ChannelID,
		Status:        string(pub.Status),
		PublishAt:     pub.PublishAt,
		DeleteAt:      pub.DeleteAt,
		PublishedAt:   pub.PublishedAt,
		TgMessageID:   pub.TgMessageID,
		TopicID:       pub.TopicID,
		AttemptErrors: pub.AttemptErrors,
		CreatedAt:     pub.CreatedAt,
	}
}

// ReschedulePublicationRequest moves a pending publication to new times
type ReschedulePublicationRequest struct {
	UserID        uuid.UUID  `json:"-"`
	PublicationID string     `json:"-" validate:"required,uuid"`
	PublishAt     time.Time  `json:"publish_at" validate:"required"`
	DeleteAt      *time.Time `json:"delete_at,omitempty"`
}

// ReschedulePublicationResponse confirms the new schedule
type ReschedulePublicationResponse struct {
	Message     string         `json:"message"`
	Publication PublicationDTO `json:"publication"`
}

// CancelPublicationRequest cancels one pending publication
type CancelPublicationRequest struct {
	UserID        uuid.UUID `json:"-"`
	PublicationID string    `json:"-" validate:"required,uuid"`
}

// CancelPublicationResponse confirms the cancellation
type CancelPublicationResponse struct {
	Message     string         `json:"message"`
	Publication PublicationDTO `json:"publication"`
}

// ListPublicationsRequest filters a user's publications
type ListPublicationsRequest struct {
	UserID   uuid.UUID `json:"-"`
	PostID   *string   `json:"post_id,omitempty" validate:"omitempty,uuid"`
	Status   *string   `json:"status,omitempty"`
	Page     int       `json:"page" validate:"omitempty,min=1"`
	PageSize int       `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListPublicationsResponse is a page of publications
type ListPublicationsResponse struct {
	Message string           `json:"message"`
	Items   []PublicationDTO `json:"items"`
	Page    int              `json:"page"`
}
