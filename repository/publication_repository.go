package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/utils"
	"gorm.io/gorm"
)

// PublicationRepositoryImpl implements PublicationRepository
type PublicationRepositoryImpl struct {
	*BaseRepository[models.Publication, any]
}

func NewPublicationRepository(db *gorm.DB) PublicationRepository {
	return &PublicationRepositoryImpl{BaseRepository: NewBaseRepository[models.Publication, any](db)}
}

func (r *PublicationRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Publication, error) {
	db := r.getDB(ctx)
	var row models.Publication
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *PublicationRepositoryImpl) ByUUIDFull(ctx context.Context, id uuid.UUID) (*models.Publication, error) {
	db := r.getDB(ctx)
	var row models.Publication
	err := db.Preload("Post").
		Preload("Channel").
		Preload("Channel.Bot").
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *PublicationRepositoryImpl) ListByPost(ctx context.Context, postID uuid.UUID) ([]*models.Publication, error) {
	db := r.getDB(ctx)
	var rows []*models.Publication
	if err := db.Preload("Channel").
		Preload("Channel.Bot").
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByOwner returns publications whose post belongs to the owner, most recent first
func (r *PublicationRepositoryImpl) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter PublicationFilter, limit, offset int) ([]*models.Publication, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	db := r.getDB(ctx)
	query := db.Joins("JOIN posts ON posts.id = publications.post_id").
		Where("posts.owner_id = ?", ownerID)
	if filter.PostID != nil {
		query = query.Where("publications.post_id = ?", *filter.PostID)
	}
	if filter.Status != nil {
		query = query.Where("publications.status = ?", *filter.Status)
	}
	var rows []*models.Publication
	err := query.
		Order("publications.created_at DESC, publications.id DESC").
		Limit(limit).
		Offset(offset).
		Preload("Post").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PublicationRepositoryImpl) Update(ctx context.Context, publication *models.Publication) error {
	db := r.getDB(ctx)
	publication.UpdatedAt = utils.UTCNowPtr()
	return db.Save(publication).Error
}

func (r *PublicationRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.getDB(ctx)
	return db.Where("id = ?", id).Delete(&models.Publication{}).Error
}

func (r *PublicationRepositoryImpl) DeleteByPost(ctx context.Context, postID uuid.UUID) error {
	db := r.getDB(ctx)
	return db.Where("post_id = ?", postID).Delete(&models.Publication{}).Error
}
