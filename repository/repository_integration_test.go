package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/repository"
	telepostesting "github.com/telepost/telepost/testing"
	"github.com/telepost/telepost/utils"
)

// setupDB provisions a throwaway database, skipping when Postgres is not
// reachable in the environment
func setupDB(t *testing.T) *telepostesting.TestDB {
	t.Helper()
	testDB, err := telepostesting.SetupTestDB()
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("teardown: %v", err)
		}
	})
	return testDB
}

func TestPublicationRepositoryRoundTrip(t *testing.T) {
	testDB := setupDB(t)
	fixtures := telepostesting.NewTestFixtures(testDB)
	ctx := telepostesting.CreateTestContext()

	pubRepo := repository.NewPublicationRepository(testDB.DB)

	publishAt := utils.UTCNow().Add(time.Hour)
	pub, err := fixtures.CreateScheduledChain("sealed-token", publishAt)
	require.NoError(t, err)

	t.Run("ByUUIDFullPreloadsChain", func(t *testing.T) {
		loaded, err := pubRepo.ByUUIDFull(ctx, pub.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.NotNil(t, loaded.Post)
		require.NotNil(t, loaded.Channel)
		require.NotNil(t, loaded.Channel.Bot)
		assert.Equal(t, "sealed-token", loaded.Channel.Bot.TokenEncrypted)
		assert.Equal(t, models.PublicationStatusScheduled, loaded.Status)
	})

	t.Run("UpdatePersistsStatusAndAttemptErrors", func(t *testing.T) {
		loaded, err := pubRepo.ByUUID(ctx, pub.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)

		loaded.Status = models.PublicationStatusFailed
		loaded.AttemptErrors = append(loaded.AttemptErrors, "attempt 1: boom")
		require.NoError(t, pubRepo.Update(ctx, loaded))

		again, err := pubRepo.ByUUID(ctx, pub.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PublicationStatusFailed, again.Status)
		require.Len(t, again.AttemptErrors, 1)
		assert.Equal(t, "attempt 1: boom", again.AttemptErrors[0])
		assert.NotNil(t, again.UpdatedAt)
	})

	t.Run("ByUUIDMissingReturnsNil", func(t *testing.T) {
		missing, err := pubRepo.ByUUID(ctx, uuid.MustParse("deadbeef-0000-4000-8000-000000000001"))
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestPublicationRepositoryListByOwner(t *testing.T) {
	testDB := setupDB(t)
	fixtures := telepostesting.NewTestFixtures(testDB)
	ctx := telepostesting.CreateTestContext()

	pubRepo := repository.NewPublicationRepository(testDB.DB)

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	bot, err := fixtures.CreateTestBot(user, "sealed")
	require.NoError(t, err)
	channel, err := fixtures.CreateTestChannel(bot)
	require.NoError(t, err)
	post, err := fixtures.CreateTestPost(user)
	require.NoError(t, err)

	first, err := fixtures.CreateTestPublication(post, channel, utils.UTCNow().Add(time.Hour))
	require.NoError(t, err)
	second, err := fixtures.CreateTestPublication(post, channel, utils.UTCNow().Add(2*time.Hour))
	require.NoError(t, err)

	second.Status = models.PublicationStatusPublished
	require.NoError(t, pubRepo.Update(ctx, second))

	// A second owner's publications must never leak into the listing
	otherOwner, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	otherPost, err := fixtures.CreateTestPost(otherOwner)
	require.NoError(t, err)
	_, err = fixtures.CreateTestPublication(otherPost, channel, utils.UTCNow().Add(time.Hour))
	require.NoError(t, err)

	t.Run("AllForOwner", func(t *testing.T) {
		rows, err := pubRepo.ListByOwner(ctx, user.ID, repository.PublicationFilter{}, 50, 0)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		for _, row := range rows {
			require.NotNil(t, row.Post)
			assert.Equal(t, user.ID, row.Post.OwnerID)
		}
	})

	t.Run("StatusFilter", func(t *testing.T) {
		status := models.PublicationStatusScheduled
		rows, err := pubRepo.ListByOwner(ctx, user.ID, repository.PublicationFilter{Status: &status}, 50, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, first.ID, rows[0].ID)
	})

	t.Run("PostFilter", func(t *testing.T) {
		rows, err := pubRepo.ListByOwner(ctx, user.ID, repository.PublicationFilter{PostID: &post.ID}, 50, 0)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
}

func TestChannelRepositoryListByIDs(t *testing.T) {
	testDB := setupDB(t)
	fixtures := telepostesting.NewTestFixtures(testDB)
	ctx := telepostesting.CreateTestContext()

	channelRepo := repository.NewChannelRepository(testDB.DB)

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	bot, err := fixtures.CreateTestBot(user, "sealed")
	require.NoError(t, err)
	one, err := fixtures.CreateTestChannel(bot)
	require.NoError(t, err)
	two, err := fixtures.CreateTestChannel(bot)
	require.NoError(t, err)

	rows, err := channelRepo.ListByIDs(ctx, []int64{one.ID, two.ID, -42})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.Bot, "ownership checks need the bot preloaded")
		assert.Equal(t, bot.ID, row.Bot.ID)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	testDB := setupDB(t)
	fixtures := telepostesting.NewTestFixtures(testDB)
	ctx := telepostesting.CreateTestContext()

	postRepo := repository.NewPostRepository(testDB.DB)

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	post := &models.Post{
		ID:      uuid.MustParse("deadbeef-0000-4000-8000-000000000001"),
		OwnerID: user.ID,
		Kind:    models.PostKindStandard,
		Content: models.PostContent{Text: "rolled back"},
	}

	sentinel := errors.New("abort")
	err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
		if err := postRepo.Save(txCtx, post); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	loaded, err := postRepo.ByUUID(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded, "the insert must not survive the rollback")
}
