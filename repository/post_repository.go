package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/telepost/telepost/models"
	"gorm.io/gorm"
)

// PostRepositoryImpl implements PostRepository
type PostRepositoryImpl struct {
	*BaseRepository[models.Post, any]
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &PostRepositoryImpl{BaseRepository: NewBaseRepository[models.Post, any](db)}
}

func (r *PostRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	db := r.getDB(ctx)
	var row models.Post
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *PostRepositoryImpl) Update(ctx context.Context, post *models.Post) error {
	db := r.getDB(ctx)
	return db.Save(post).Error
}

func (r *PostRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.getDB(ctx)
	return db.Where("id = ?", id).Delete(&models.Post{}).Error
}
