package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/utils"
	"gorm.io/gorm"
)

// BotRepositoryImpl implements BotRepository
type BotRepositoryImpl struct {
	*BaseRepository[models.UserBot, any]
}

func NewBotRepository(db *gorm.DB) BotRepository {
	return &BotRepositoryImpl{BaseRepository: NewBaseRepository[models.UserBot, any](db)}
}

func (r *BotRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.UserBot, error) {
	db := r.getDB(ctx)
	var row models.UserBot
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *BotRepositoryImpl) ByTelegramBotID(ctx context.Context, telegramBotID int64) (*models.UserBot, error) {
	db := r.getDB(ctx)
	var row models.UserBot
	if err := db.Where("telegram_bot_id = ?", telegramBotID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *BotRepositoryImpl) Update(ctx context.Context, bot *models.UserBot) error {
	db := r.getDB(ctx)
	bot.UpdatedAt = utils.UTCNowPtr()
	return db.Save(bot).Error
}
