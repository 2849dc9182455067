package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/telepost/telepost/models"
)

// SchedulePostRequest creates a post and fans it out to channels
type SchedulePostRequest struct {
	UserID     uuid.UUID          `json:"-"`
	Name       string             `json:"name" validate:"omitempty,max=255"`
	Kind       string             `json:"kind" validate:"required"`
	Content    models.PostContent `json:"content" validate:"required"`
	ChannelIDs []int64            `json:"channel_ids" validate:"required,min=1,max=100"`
	TopicID    *int64             `json:"topic_id,omitempty"`
	PublishAt  time.Time          `json:"publish_at" validate:"required"`
	DeleteAt   *time.Time         `json:"delete_at,omitempty"`
}

// SchedulePostResponse reports the created post and its publications
type SchedulePostResponse struct {
	Message      string           `json:"message"`
	PostID       string           `json:"post_id"`
	Publications []PublicationDTO `json:"publications"`
	Skipped      []int64          `json:"skipped_channel_ids,omitempty"`
}

// AddChannelsRequest fans an existing post out to additional channels
type AddChannelsRequest struct {
	UserID     uuid.UUID  `json:"-"`
	PostID     string     `json:"-" validate:"required,uuid"`
	ChannelIDs []int64    `json:"channel_ids" validate:"required,min=1,max=100"`
	TopicID    *int64     `json:"topic_id,omitempty"`
	PublishAt  time.Time  `json:"publish_at" validate:"required"`
	DeleteAt   *time.Time `json:"delete_at,omitempty"`
}

// AddChannelsResponse reports the publications created for the new channels
type AddChannelsResponse struct {
	Message      string           `json:"message"`
	PostID       string           `json:"post_id"`
	Publications []PublicationDTO `json:"publications"`
	Skipped      []int64          `json:"skipped_channel_ids,omitempty"`
}

// EditPostContentRequest replaces the content of an existing post.
// Already published messages are edited in place where Telegram allows it.
type EditPostContentRequest struct {
	UserID  uuid.UUID          `json:"-"`
	PostID  string             `json:"-" validate:"required,uuid"`
	Content models.PostContent `json:"content" validate:"required"`
}

// EditPostContentResponse reports which publications were live-edited
type EditPostContentResponse struct {
	Message     string   `json:"message"`
	PostID      string   `json:"post_id"`
	EditedLive  []string `json:"edited_live,omitempty"`
	EditWarning []string `json:"edit_warnings,omitempty"`
}

// DeletePostRequest removes a post, cancelling pending publications and
// best-effort deleting already published messages
type DeletePostRequest struct {
	UserID uuid.UUID `json:"-"`
	PostID string    `json:"-" validate:"required,uuid"`
}

// DeletePostResponse summarizes what happened to each publication
type DeletePostResponse struct {
	Message   string `json:"message"`
	PostID    string `json:"post_id"`
	Cancelled int    `json:"cancelled"`
	Deleted   int    `json:"deleted"`
	Failed    int    `json:"failed"`
}
