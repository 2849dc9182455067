package repository

import (
	"context"
	"errors"

	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/utils"
	"gorm.io/gorm"
)

// ChannelRepositoryImpl implements ChannelRepository
type ChannelRepositoryImpl struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &ChannelRepositoryImpl{db: db}
}

func (r *ChannelRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

func (r *ChannelRepositoryImpl) ByChatID(ctx context.Context, chatID int64) (*models.Channel, error) {
	db := r.getDB(ctx)
	var row models.Channel
	if err := db.Where("id = ?", chatID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ChannelRepositoryImpl) ListByIDs(ctx context.Context, ids []int64) ([]*models.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)
	var rows []*models.Channel
	if err := db.Preload("Bot").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ChannelRepositoryImpl) Save(ctx context.Context, channel *models.Channel) error {
	db := r.getDB(ctx)
	return db.Create(channel).Error
}

func (r *ChannelRepositoryImpl) Update(ctx context.Context, channel *models.Channel) error {
	db := r.getDB(ctx)
	channel.UpdatedAt = utils.UTCNowPtr()
	return db.Save(channel).Error
}
