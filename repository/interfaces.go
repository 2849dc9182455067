// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/telepost/telepost/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// PostRepository defines operations for post templates
type PostRepository interface {
	Repository[models.Post, any]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PublicationFilter narrows publication listings; nil fields match everything
type PublicationFilter struct {
	PostID *uuid.UUID
	Status *models.PublicationStatus
}

// PublicationRepository defines operations for scheduled publications
type PublicationRepository interface {
	Repository[models.Publication, any]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.Publication, error)
	// ByUUIDFull loads the publication with its post, channel and owning bot
	ByUUIDFull(ctx context.Context, id uuid.UUID) (*models.Publication, error)
	ListByPost(ctx context.Context, postID uuid.UUID) ([]*models.Publication, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter PublicationFilter, limit, offset int) ([]*models.Publication, error)
	Update(ctx context.Context, publication *models.Publication) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByPost(ctx context.Context, postID uuid.UUID) error
}

// ChannelRepository defines operations for channels
type ChannelRepository interface {
	ByChatID(ctx context.Context, chatID int64) (*models.Channel, error)
	// ListByIDs returns the channels found among ids; missing ids are simply absent
	ListByIDs(ctx context.Context, ids []int64) ([]*models.Channel, error)
	Save(ctx context.Context, channel *models.Channel) error
	Update(ctx context.Context, channel *models.Channel) error
}

// BotRepository defines operations for connected bots
type BotRepository interface {
	Repository[models.UserBot, any]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.UserBot, error)
	ByTelegramBotID(ctx context.Context, telegramBotID int64) (*models.UserBot, error)
	Update(ctx context.Context, bot *models.UserBot) error
}
