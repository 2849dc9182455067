// Package testing provides test utilities and database setup for integration tests
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates an active operator account
func (tf *TestFixtures) CreateTestUser() (*models.User, error) {
	user := &models.User{
		ID:             uuid.New(),
		TelegramUserID: rand.Int63n(1_000_000_000),
		Username:       fmt.Sprintf("operator_%d", rand.Intn(100000)),
		FirstName:      "Test",
		IsActive:       true,
		CreatedAt:      utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}
	return user, nil
}

// CreateTestBot creates an active bot owned by the user. The stored token is
// already encrypted with the given credential sealer output.
func (tf *TestFixtures) CreateTestBot(user *models.User, tokenEncrypted string) (*models.UserBot, error) {
	bot := &models.UserBot{
		ID:             uuid.New(),
		TelegramBotID:  rand.Int63n(1_000_000_000),
		Username:       fmt.Sprintf("test_bot_%d", rand.Intn(100000)),
		TokenEncrypted: tokenEncrypted,
		Status:         models.BotStatusActive,
		UserID:         user.ID,
		CreatedAt:      utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(bot).Error; err != nil {
		return nil, fmt.Errorf("failed to create test bot: %w", err)
	}
	return bot, nil
}

// CreateTestChannel creates an active channel administered by the bot
func (tf *TestFixtures) CreateTestChannel(bot *models.UserBot) (*models.Channel, error) {
	channel := &models.Channel{
		ID:         -1_000_000_000 - rand.Int63n(1_000_000_000),
		Title:      fmt.Sprintf("Test Channel %d", rand.Intn(100000)),
		IsActive:   true,
		OwnerBotID: bot.ID,
		CreatedAt:  utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(channel).Error; err != nil {
		return nil, fmt.Errorf("failed to create test channel: %w", err)
	}
	return channel, nil
}

// CreateTestPost creates a standard text post owned by the user
func (tf *TestFixtures) CreateTestPost(user *models.User) (*models.Post, error) {
	post := &models.Post{
		ID:      uuid.New(),
		OwnerID: user.ID,
		Kind:    models.PostKindStandard,
		Content: models.PostContent{
			Text: "scheduled test post",
		},
		Name:      fmt.Sprintf("post-%d", rand.Intn(100000)),
		CreatedAt: utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(post).Error; err != nil {
		return nil, fmt.Errorf("failed to create test post: %w", err)
	}
	return post, nil
}

// CreateTestPublication creates a scheduled publication of the post to the channel
func (tf *TestFixtures) CreateTestPublication(post *models.Post, channel *models.Channel, publishAt time.Time) (*models.Publication, error) {
	pub := &models.Publication{
		ID:        uuid.New(),
		PostID:    post.ID,
		ChannelID: channel.ID,
		PublishAt: publishAt,
		Status:    models.PublicationStatusScheduled,
		CreatedAt: utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(pub).Error; err != nil {
		return nil, fmt.Errorf("failed to create test publication: %w", err)
	}
	return pub, nil
}

// CreateScheduledChain wires the whole ownership chain user -> bot ->
// channel -> post -> scheduled publication in one call
func (tf *TestFixtures) CreateScheduledChain(tokenEncrypted string, publishAt time.Time) (*models.Publication, error) {
	user, err := tf.CreateTestUser()
	if err != nil {
		return nil, err
	}
	bot, err := tf.CreateTestBot(user, tokenEncrypted)
	if err != nil {
		return nil, err
	}
	channel, err := tf.CreateTestChannel(bot)
	if err != nil {
		return nil, err
	}
	post, err := tf.CreateTestPost(user)
	if err != nil {
		return nil, err
	}
	return tf.CreateTestPublication(post, channel, publishAt)
}
