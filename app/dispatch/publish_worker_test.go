package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telepost/telepost/app/dto"
	"github.com/telepost/telepost/app/services"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/queue"
	"github.com/telepost/telepost/repository"
	"github.com/telepost/telepost/telegram"
	"github.com/telepost/telepost/utils"
)

const testCredKey = "0123456789abcdef0123456789abcdef"

type fakePubRepo struct {
	pubs map[uuid.UUID]*models.Publication
}

func newFakePubRepo() *fakePubRepo {
	return &fakePubRepo{pubs: make(map[uuid.UUID]*models.Publication)}
}

func (r *fakePubRepo) ByID(ctx context.Context, id uint) (*models.Publication, error) {
	return nil, nil
}
func (r *fakePubRepo) Save(ctx context.Context, pub *models.Publication) error {
	r.pubs[pub.ID] = pub
	return nil
}
func (r *fakePubRepo) SaveBatch(ctx context.Context, pubs []*models.Publication) error {
	for _, p := range pubs {
		r.pubs[p.ID] = p
	}
	return nil
}
func (r *fakePubRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.Publication, error) {
	return r.pubs[id], nil
}
func (r *fakePubRepo) ByUUIDFull(ctx context.Context, id uuid.UUID) (*models.Publication, error) {
	return r.pubs[id], nil
}
func (r *fakePubRepo) ListByPost(ctx context.Context, postID uuid.UUID) ([]*models.Publication, error) {
	return nil, nil
}
func (r *fakePubRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter repository.PublicationFilter, limit, offset int) ([]*models.Publication, error) {
	return nil, nil
}
func (r *fakePubRepo) Update(ctx context.Context, pub *models.Publication) error {
	r.pubs[pub.ID] = pub
	return nil
}
func (r *fakePubRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.pubs, id)
	return nil
}
func (r *fakePubRepo) DeleteByPost(ctx context.Context, postID uuid.UUID) error {
	return nil
}

type fakeBotRepo struct {
	bots map[uuid.UUID]*models.UserBot
}

func newFakeBotRepo() *fakeBotRepo {
	return &fakeBotRepo{bots: make(map[uuid.UUID]*models.UserBot)}
}

func (r *fakeBotRepo) ByID(ctx context.Context, id uint) (*models.UserBot, error) { return nil, nil }
func (r *fakeBotRepo) Save(ctx context.Context, bot *models.UserBot) error {
	r.bots[bot.ID] = bot
	return nil
}
func (r *fakeBotRepo) SaveBatch(ctx context.Context, bots []*models.UserBot) error {
	for _, b := range bots {
		r.bots[b.ID] = b
	}
	return nil
}
func (r *fakeBotRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.UserBot, error) {
	return r.bots[id], nil
}
func (r *fakeBotRepo) ByTelegramBotID(ctx context.Context, telegramBotID int64) (*models.UserBot, error) {
	for _, b := range r.bots {
		if b.TelegramBotID == telegramBotID {
			return b, nil
		}
	}
	return nil, nil
}
func (r *fakeBotRepo) Update(ctx context.Context, bot *models.UserBot) error {
	r.bots[bot.ID] = bot
	return nil
}

type fakeQueue struct {
	jobs        map[string]time.Duration
	failEnqueue bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]time.Duration)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobName string, payload any, delay time.Duration, opts queue.Options) (string, error) {
	if q.failEnqueue {
		return "", errors.New("redis unavailable")
	}
	id := uuid.NewString()
	q.jobs[id] = delay
	return id, nil
}

func (q *fakeQueue) Cancel(ctx context.Context, jobID string) error {
	delete(q.jobs, jobID)
	return nil
}

// botAPIResponse scripts one Telegram answer per method
type botAPIResponse struct {
	status int
	body   string
}

type dispatchFixture struct {
	repo        *fakePubRepo
	bots        *fakeBotRepo
	deleteQueue *fakeQueue
	publish     *PublishHandler
	delete      *DeleteHandler
	server      *httptest.Server
	responses   map[string]botAPIResponse
	requests    []capturedRequest
}

type capturedRequest struct {
	method string
	body   map[string]any
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		repo:        newFakePubRepo(),
		bots:        newFakeBotRepo(),
		deleteQueue: newFakeQueue(),
		responses:   make(map[string]botAPIResponse),
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[len("/botTOKEN/"):]
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.requests = append(f.requests, capturedRequest{method: method, body: body})

		resp, ok := f.responses[method]
		if !ok {
			resp = botAPIResponse{status: http.StatusOK, body: `{"ok":true,"result":{"message_id":101}}`}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(f.server.Close)

	creds, err := services.NewCredentialService(testCredKey)
	require.NoError(t, err)

	tg := telegram.NewClient(telegram.Config{
		BaseURL:           f.server.URL,
		MessagesPerSecond: 1000,
	})
	sender := NewSender(tg, creds, nil)
	f.publish = NewPublishHandler(f.repo, f.bots, f.deleteQueue, sender, nil)
	f.delete = NewDeleteHandler(f.repo, sender, nil)
	return f
}

// addPublication wires a scheduled text publication with an active channel
// whose bot token decrypts to TOKEN
func (f *dispatchFixture) addPublication(t *testing.T) *models.Publication {
	t.Helper()
	creds, err := services.NewCredentialService(testCredKey)
	require.NoError(t, err)
	sealed, err := creds.EncryptToken("TOKEN")
	require.NoError(t, err)

	post := &models.Post{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Kind:    models.PostKindStandard,
		Content: models.PostContent{Text: "hello"},
	}
	channel := &models.Channel{
		ID:       -100500,
		IsActive: true,
		Bot: &models.UserBot{
			ID:             uuid.New(),
			Status:         models.BotStatusActive,
			TokenEncrypted: sealed,
		},
	}
	pub := &models.Publication{
		ID:        uuid.New(),
		PostID:    post.ID,
		ChannelID: channel.ID,
		PublishAt: time.Now().Add(-time.Second),
		Status:    models.PublicationStatusScheduled,
		Post:      post,
		Channel:   channel,
	}
	f.repo.pubs[pub.ID] = pub
	return pub
}

func (f *dispatchFixture) publishJob(pub *models.Publication, attemptsMade int) *queue.Job {
	payload, _ := json.Marshal(dto.PublishJobPayload{PublicationID: pub.ID})
	return &queue.Job{
		ID:           uuid.NewString(),
		Queue:        utils.PublishQueue,
		Name:         dto.JobSendPost,
		Payload:      payload,
		AttemptsMade: attemptsMade,
		MaxAttempts:  utils.MaxDispatchAttempts,
		Backoff:      utils.DispatchBackoffBase,
	}
}

func (f *dispatchFixture) deleteJob(pub *models.Publication) *queue.Job {
	payload, _ := json.Marshal(dto.DeleteJobPayload{PublicationID: pub.ID})
	return &queue.Job{
		ID:          uuid.NewString(),
		Queue:       utils.DeleteQueue,
		Name:        dto.JobDeletePost,
		Payload:     payload,
		MaxAttempts: utils.MaxDispatchAttempts,
	}
}

func TestPublishHappyPathArmsDeleteTimer(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.DeleteAt = utils.ToPtr(time.Now().Add(time.Hour))

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusPublished, pub.Status)
	require.NotNil(t, pub.TgMessageID)
	assert.Equal(t, int64(101), *pub.TgMessageID)
	assert.NotNil(t, pub.PublishedAt)
	assert.True(t, pub.PublishJob.IsZero())
	assert.False(t, pub.DeleteJob.IsZero())
	assert.Len(t, f.deleteQueue.jobs, 1)
}

func TestPublishSkipsNonScheduledStates(t *testing.T) {
	f := newDispatchFixture(t)

	for _, status := range []models.PublicationStatus{
		models.PublicationStatusPublished,
		models.PublicationStatusFailed,
		models.PublicationStatusDeleted,
	} {
		pub := f.addPublication(t)
		pub.Status = status

		err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
		require.NoError(t, err)
		assert.Equal(t, status, pub.Status)
	}
	assert.Empty(t, f.requests)
}

func TestPublishVanishedPublicationDropsJob(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	delete(f.repo.pubs, pub.ID)

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	assert.NoError(t, err)
	assert.Empty(t, f.requests)
}

func TestPublishInactiveChannelFailsPermanently(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Channel.IsActive = false

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusFailed, pub.Status)
	assert.Contains(t, pub.AttemptErrors[0], "inactive")
	assert.Empty(t, f.requests)
}

func TestPublishRevokedBotFailsPermanently(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Channel.Bot.Status = models.BotStatusRevoked

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusFailed, pub.Status)
	assert.Empty(t, f.requests)
}

func TestPublishRateLimitRedeliversWithoutAttempt(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	f.responses["sendMessage"] = botAPIResponse{
		status: http.StatusTooManyRequests,
		body:   `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`,
	}

	before := time.Now()
	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))

	var redeliver *queue.RedeliverError
	require.True(t, errors.As(err, &redeliver))
	wait := redeliver.At.Sub(before)
	assert.GreaterOrEqual(t, wait, 3*time.Second+utils.RateLimitSafetyMargin)
	assert.Less(t, wait, 5*time.Second+utils.RateLimitSafetyMargin)

	assert.Equal(t, models.PublicationStatusScheduled, pub.Status)
	assert.Empty(t, pub.AttemptErrors)
}

func TestPublishFatalErrorMarksFailed(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	f.responses["sendMessage"] = botAPIResponse{
		status: http.StatusForbidden,
		body:   `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked from the channel chat"}`,
	}

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusFailed, pub.Status)
	require.NotEmpty(t, pub.AttemptErrors)
	assert.Contains(t, pub.AttemptErrors[0], "kicked")
}

func TestPublishUnauthorizedFlagsBotRevoked(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	f.bots.bots[pub.Channel.Bot.ID] = pub.Channel.Bot
	f.responses["sendMessage"] = botAPIResponse{
		status: http.StatusUnauthorized,
		body:   `{"ok":false,"error_code":401,"description":"Unauthorized"}`,
	}

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusFailed, pub.Status)
	assert.Equal(t, models.BotStatusRevoked, f.bots.bots[pub.Channel.Bot.ID].Status)
}

func TestPublishTransientErrorRetriesThenExhausts(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	f.responses["sendMessage"] = botAPIResponse{
		status: http.StatusBadGateway,
		body:   `{"ok":false,"error_code":502,"description":"Bad Gateway"}`,
	}

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.Error(t, err)
	assert.Equal(t, models.PublicationStatusScheduled, pub.Status)
	assert.Len(t, pub.AttemptErrors, 1)

	err = f.publish.Handle(context.Background(), f.publishJob(pub, utils.MaxDispatchAttempts-1))
	require.Error(t, err)
	assert.Equal(t, models.PublicationStatusFailed, pub.Status)
	assert.Len(t, pub.AttemptErrors, 2)
}

func TestPublishQuizForcedAnonymousWithWarning(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Post.Kind = models.PostKindPoll
	pub.Post.Content = models.PostContent{
		Question:        "2+2?",
		PollOptions:     []string{"3", "4"},
		IsQuiz:          true,
		IsAnonymous:     utils.ToPtr(false),
		CorrectOptionID: utils.ToPtr(1),
	}
	f.responses["sendPoll"] = botAPIResponse{
		status: http.StatusOK,
		body:   `{"ok":true,"result":{"message_id":55}}`,
	}

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusPublished, pub.Status)
	require.NotEmpty(t, pub.AttemptErrors)
	assert.Contains(t, pub.AttemptErrors[0], "anonymous")

	require.Len(t, f.requests, 1)
	assert.Equal(t, "sendPoll", f.requests[0].method)
	assert.Equal(t, true, f.requests[0].body["is_anonymous"])
	assert.Equal(t, "quiz", f.requests[0].body["type"])
}

func TestPublishPinFailureDegradesToWarning(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Post.Content.Options.Pin = true
	f.responses["pinChatMessage"] = botAPIResponse{
		status: http.StatusBadRequest,
		body:   `{"ok":false,"error_code":400,"description":"Bad Request: not enough rights to manage pinned messages"}`,
	}

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusPublished, pub.Status)
	require.NotEmpty(t, pub.AttemptErrors)
	assert.Contains(t, pub.AttemptErrors[0], "pin:")
}

func TestDeleteHandlerRemovesMessage(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Status = models.PublicationStatusPublished
	pub.TgMessageID = utils.ToPtr(int64(101))
	pub.DeleteJob = models.QueueRef{Queue: utils.DeleteQueue, JobID: "j1"}
	f.responses["deleteMessage"] = botAPIResponse{
		status: http.StatusOK,
		body:   `{"ok":true,"result":true}`,
	}

	err := f.delete.Handle(context.Background(), f.deleteJob(pub))
	require.NoError(t, err)

	assert.Equal(t, models.PublicationStatusDeleted, pub.Status)
	assert.True(t, pub.DeleteJob.IsZero())
}

func TestDeleteHandlerTreatsGoneMessageAsDeleted(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Status = models.PublicationStatusPublished
	pub.TgMessageID = utils.ToPtr(int64(101))
	f.responses["deleteMessage"] = botAPIResponse{
		status: http.StatusBadRequest,
		body:   `{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`,
	}

	err := f.delete.Handle(context.Background(), f.deleteJob(pub))
	require.NoError(t, err)
	assert.Equal(t, models.PublicationStatusDeleted, pub.Status)
}

func TestDeleteHandlerExhaustionStillMarksDeleted(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Status = models.PublicationStatusPublished
	pub.TgMessageID = utils.ToPtr(int64(101))
	pub.DeleteJob = models.QueueRef{Queue: utils.DeleteQueue, JobID: "j1"}
	f.responses["deleteMessage"] = botAPIResponse{
		status: http.StatusBadGateway,
		body:   `{"ok":false,"error_code":502,"description":"Bad Gateway"}`,
	}

	err := f.delete.Handle(context.Background(), f.deleteJob(pub))
	require.Error(t, err)
	assert.Equal(t, models.PublicationStatusPublished, pub.Status)
	assert.Len(t, pub.AttemptErrors, 1)

	last := f.deleteJob(pub)
	last.AttemptsMade = utils.MaxDispatchAttempts - 1
	err = f.delete.Handle(context.Background(), last)
	require.Error(t, err)
	assert.Equal(t, models.PublicationStatusDeleted, pub.Status)
	assert.True(t, pub.DeleteJob.IsZero())
	assert.Len(t, pub.AttemptErrors, 2)
}

func TestDeleteHandlerSkipsUnpublished(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)

	err := f.delete.Handle(context.Background(), f.deleteJob(pub))
	require.NoError(t, err)
	assert.Equal(t, models.PublicationStatusScheduled, pub.Status)
	assert.Empty(t, f.requests)
}

func TestPublishSendsHTMLParseMode(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	assert.Equal(t, "sendMessage", f.requests[0].method)
	assert.Equal(t, telegram.ParseModeHTML, f.requests[0].body["parse_mode"])
}

func TestPublishCustomParseModeOverridesDefault(t *testing.T) {
	f := newDispatchFixture(t)
	pub := f.addPublication(t)
	pub.Post.Content.Options.ParseMode = telegram.ParseModeMarkdownV2

	err := f.publish.Handle(context.Background(), f.publishJob(pub, 0))
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	assert.Equal(t, telegram.ParseModeMarkdownV2, f.requests[0].body["parse_mode"])
}

func TestSenderMediaHeuristics(t *testing.T) {
	assert.True(t, isVideo("https://cdn.example.com/clip.MP4"))
	assert.True(t, isVideo("https://cdn.example.com/clip.webm?sig=abc"))
	assert.False(t, isVideo("https://cdn.example.com/photo.jpg"))
	assert.False(t, isVideo("https://cdn.example.com/photo"))

	items := mediaGroupItems(&models.PostContent{
		Media: []string{"a.jpg", "b.mp4"},
		Text:  "caption",
	})
	require.Len(t, items, 2)
	assert.Equal(t, "photo", items[0]["type"])
	assert.Equal(t, "caption", items[0]["caption"])
	assert.Equal(t, telegram.ParseModeHTML, items[0]["parse_mode"])
	assert.Equal(t, "video", items[1]["type"])
	_, hasCaption := items[1]["caption"]
	assert.False(t, hasCaption)
}
