package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telepost/telepost/app/dto"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/queue"
	"github.com/telepost/telepost/repository"
	"github.com/telepost/telepost/utils"
)

type fakePostRepo struct {
	posts map[uuid.UUID]*models.Post
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[uuid.UUID]*models.Post)}
}

func (r *fakePostRepo) ByID(ctx context.Context, id uint) (*models.Post, error) { return nil, nil }
func (r *fakePostRepo) Save(ctx context.Context, post *models.Post) error {
	r.posts[post.ID] = post
	return nil
}
func (r *fakePostRepo) SaveBatch(ctx context.Context, posts []*models.Post) error {
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return nil
}
func (r *fakePostRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return r.posts[id], nil
}
func (r *fakePostRepo) Update(ctx context.Context, post *models.Post) error {
	r.posts[post.ID] = post
	return nil
}
func (r *fakePostRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.posts, id)
	return nil
}

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
	var out []*models.Publication
	for _, p := range r.pubs {
		if p.PostID == postID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (r *fakePubRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter repository.PublicationFilter, limit, offset int) ([]*models.Publication, error) {
	var out []*models.Publication
	for _, p := range r.pubs {
		if p.Post == nil || p.Post.OwnerID != ownerID {
			continue
		}
		if filter.PostID != nil && p.PostID != *filter.PostID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
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
	for id, p := range r.pubs {
		if p.PostID == postID {
			delete(r.pubs, id)
		}
	}
	return nil
}

type fakeChannelRepo struct {
	channels map[int64]*models.Channel
}

func newFakeChannelRepo() *fakeChannelRepo {
	return &fakeChannelRepo{channels: make(map[int64]*models.Channel)}
}

func (r *fakeChannelRepo) ByChatID(ctx context.Context, chatID int64) (*models.Channel, error) {
	return r.channels[chatID], nil
}
func (r *fakeChannelRepo) ListByIDs(ctx context.Context, ids []int64) ([]*models.Channel, error) {
	var out []*models.Channel
	for _, id := range ids {
		if ch, ok := r.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}
func (r *fakeChannelRepo) Save(ctx context.Context, ch *models.Channel) error {
	r.channels[ch.ID] = ch
	return nil
}
func (r *fakeChannelRepo) Update(ctx context.Context, ch *models.Channel) error {
	r.channels[ch.ID] = ch
	return nil
}

type enqueuedJob struct {
	name  string
	delay time.Duration
}

type fakeQueue struct {
	jobs        map[string]enqueuedJob
	cancelled   []string
	failEnqueue bool
	failAfter   int
	enqueues    int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]enqueuedJob)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobName string, payload any, delay time.Duration, opts queue.Options) (string, error) {
	q.enqueues++
	if q.failEnqueue || (q.failAfter > 0 && q.enqueues > q.failAfter) {
		return "", errors.New("redis unavailable")
	}
	id := uuid.NewString()
	q.jobs[id] = enqueuedJob{name: jobName, delay: delay}
	return id, nil
}

func (q *fakeQueue) Cancel(ctx context.Context, jobID string) error {
	q.cancelled = append(q.cancelled, jobID)
	delete(q.jobs, jobID)
	return nil
}

type fakeLive struct {
	edited  []uuid.UUID
	deleted []uuid.UUID
	editErr error
	delErr  error
}

func (l *fakeLive) EditLive(ctx context.Context, pub *models.Publication, post *models.Post) error {
	if l.editErr != nil {
		return l.editErr
	}
	l.edited = append(l.edited, pub.ID)
	return nil
}

func (l *fakeLive) DeleteLive(ctx context.Context, pub *models.Publication) error {
	if l.delErr != nil {
		return l.delErr
	}
	l.deleted = append(l.deleted, pub.ID)
	return nil
}

type flowFixture struct {
	flow         PublisherFlow
	posts        *fakePostRepo
	pubs         *fakePubRepo
	channels     *fakeChannelRepo
	publishQueue *fakeQueue
	deleteQueue  *fakeQueue
	live         *fakeLive
	userID       uuid.UUID
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	f := &flowFixture{
		posts:        newFakePostRepo(),
		pubs:         newFakePubRepo(),
		channels:     newFakeChannelRepo(),
		publishQueue: newFakeQueue(),
		deleteQueue:  newFakeQueue(),
		live:         &fakeLive{},
		userID:       uuid.New(),
	}
	f.flow = NewPublisherFlow(f.posts, f.pubs, f.channels, f.publishQueue, f.deleteQueue, f.live, nil, nil)
	return f
}

func (f *flowFixture) addChannel(id int64, active bool) *models.Channel {
	ch := &models.Channel{
		ID:       id,
		Title:    fmt.Sprintf("channel %d", id),
		IsActive: active,
		Bot:      &models.UserBot{ID: uuid.New(), UserID: f.userID, Status: models.BotStatusActive},
	}
	f.channels.channels[id] = ch
	return ch
}

func textRequest(f *flowFixture, channelIDs ...int64) *dto.SchedulePostRequest {
	return &dto.SchedulePostRequest{
		UserID:     f.userID,
		Kind:       string(models.PostKindStandard),
		Content:    models.PostContent{Text: "hello"},
		ChannelIDs: channelIDs,
		PublishAt:  time.Now().Add(time.Hour),
	}
}

func TestSchedulePostFansOutPerChannel(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)
	f.addChannel(-200, true)
	f.addChannel(-300, false)

	resp, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100, -200, -300), nil)
	require.NoError(t, err)

	assert.Len(t, resp.Publications, 2)
	assert.Equal(t, []int64{-300}, resp.Skipped)
	assert.Len(t, f.publishQueue.jobs, 2)
	for _, item := range resp.Publications {
		assert.Equal(t, string(models.PublicationStatusScheduled), item.Status)
	}
	for _, pub := range f.pubs.pubs {
		assert.False(t, pub.PublishJob.IsZero())
		assert.Equal(t, utils.PublishQueue, pub.PublishJob.Queue)
	}
}

func TestSchedulePostUnknownChannelFails(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)

	_, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100, -999), nil)
	assert.True(t, IsChannelNotFound(err))
	assert.Empty(t, f.publishQueue.jobs)
}

func TestSchedulePostForeignChannelDenied(t *testing.T) {
	f := newFlowFixture(t)
	ch := f.addChannel(-100, true)
	ch.Bot.UserID = uuid.New()

	_, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100), nil)
	assert.True(t, IsAccessDenied(err))
}

func TestSchedulePostAllChannelsInactiveFails(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, false)

	_, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100), nil)
	assert.True(t, IsNoActiveChannels(err))
}

func TestSchedulePastPublishTimeFiresImmediately(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)

	req := textRequest(f, -100)
	req.PublishAt = time.Now().Add(-time.Minute)

	_, err := f.flow.SchedulePost(context.Background(), req, nil)
	require.NoError(t, err)

	require.Len(t, f.publishQueue.jobs, 1)
	for _, job := range f.publishQueue.jobs {
		assert.Equal(t, time.Duration(0), job.delay)
		assert.Equal(t, dto.JobSendPost, job.name)
	}
}

func TestScheduleEnqueueFailureFailsWholeCall(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)
	f.publishQueue.failEnqueue = true

	_, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100), nil)
	assert.True(t, IsQueueUnavailable(err))

	assert.Empty(t, f.pubs.pubs)
	assert.Empty(t, f.posts.posts)
	assert.Empty(t, f.publishQueue.jobs)
}

func TestScheduleEnqueueFailureCancelsEarlierJobs(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)
	f.addChannel(-200, true)
	f.publishQueue.failAfter = 1

	_, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100, -200), nil)
	assert.True(t, IsQueueUnavailable(err))

	assert.Len(t, f.publishQueue.cancelled, 1)
	assert.Empty(t, f.publishQueue.jobs)
	assert.Empty(t, f.pubs.pubs)
}

func TestScheduleValidation(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)

	req := textRequest(f, -100)
	req.Kind = string(models.PostKindPoll)
	req.Content = models.PostContent{Question: "favorite color?", PollOptions: []string{"red"}}
	_, err := f.flow.SchedulePost(context.Background(), req, nil)
	assert.True(t, IsContentInvalid(err))

	req = textRequest(f, -100)
	req.DeleteAt = utils.ToPtr(req.PublishAt.Add(-time.Minute))
	_, err = f.flow.SchedulePost(context.Background(), req, nil)
	assert.True(t, IsDeleteBeforePublish(err))
}

func scheduleOne(t *testing.T, f *flowFixture) *models.Publication {
	t.Helper()
	f.addChannel(-100, true)
	resp, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100), nil)
	require.NoError(t, err)
	require.Len(t, resp.Publications, 1)

	id := uuid.MustParse(resp.Publications[0].ID)
	pub := f.pubs.pubs[id]
	require.NotNil(t, pub)
	pub.Post = f.posts.posts[pub.PostID]
	return pub
}

func TestAddChannelsFansOutToNewOnly(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)
	f.addChannel(-200, true)

	resp, err := f.flow.AddChannels(context.Background(), &dto.AddChannelsRequest{
		UserID:     f.userID,
		PostID:     pub.PostID.String(),
		ChannelIDs: []int64{-100, -200},
		PublishAt:  time.Now().Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	require.Len(t, resp.Publications, 1)
	assert.Equal(t, []int64{-100}, resp.Skipped)
	assert.Len(t, f.pubs.pubs, 2)
	assert.Len(t, f.publishQueue.jobs, 2)
	for _, item := range resp.Publications {
		assert.Equal(t, string(models.PublicationStatusScheduled), item.Status)
	}
}

func TestAddChannelsAllCoveredFails(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)

	_, err := f.flow.AddChannels(context.Background(), &dto.AddChannelsRequest{
		UserID:     f.userID,
		PostID:     pub.PostID.String(),
		ChannelIDs: []int64{-100},
		PublishAt:  time.Now().Add(time.Hour),
	}, nil)
	assert.True(t, IsNoActiveChannels(err))
	assert.Len(t, f.pubs.pubs, 1)
	assert.Len(t, f.publishQueue.jobs, 1)
}

func TestAddChannelsEnqueueFailureRollsBack(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)
	f.addChannel(-200, true)
	f.publishQueue.failEnqueue = true

	_, err := f.flow.AddChannels(context.Background(), &dto.AddChannelsRequest{
		UserID:     f.userID,
		PostID:     pub.PostID.String(),
		ChannelIDs: []int64{-200},
		PublishAt:  time.Now().Add(time.Hour),
	}, nil)
	assert.True(t, IsQueueUnavailable(err))

	assert.Len(t, f.pubs.pubs, 1)
	assert.Contains(t, f.pubs.pubs, pub.ID)
	assert.Len(t, f.publishQueue.jobs, 1)
}

func TestRescheduleReplacesQueueJob(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)
	oldJob := pub.PublishJob.JobID

	resp, err := f.flow.Reschedule(context.Background(), &dto.ReschedulePublicationRequest{
		UserID:        f.userID,
		PublicationID: pub.ID.String(),
		PublishAt:     time.Now().Add(2 * time.Hour),
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, f.publishQueue.cancelled, oldJob)
	assert.NotEqual(t, oldJob, pub.PublishJob.JobID)
	assert.Len(t, f.publishQueue.jobs, 1)
	assert.Equal(t, string(models.PublicationStatusScheduled), resp.Publication.Status)
}

func TestRescheduleRejectsPublished(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)
	pub.Status = models.PublicationStatusPublished

	_, err := f.flow.Reschedule(context.Background(), &dto.ReschedulePublicationRequest{
		UserID:        f.userID,
		PublicationID: pub.ID.String(),
		PublishAt:     time.Now().Add(2 * time.Hour),
	}, nil)
	assert.True(t, IsPublicationNotPending(err))
}

func TestCancelPublication(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)
	jobID := pub.PublishJob.JobID

	resp, err := f.flow.CancelPublication(context.Background(), &dto.CancelPublicationRequest{
		UserID:        f.userID,
		PublicationID: pub.ID.String(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.PublicationStatusDeleted), resp.Publication.Status)
	assert.Contains(t, f.publishQueue.cancelled, jobID)
	assert.Empty(t, f.publishQueue.jobs)
	assert.NotContains(t, f.pubs.pubs, pub.ID)
}

func TestCancelForeignPublicationDenied(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)

	_, err := f.flow.CancelPublication(context.Background(), &dto.CancelPublicationRequest{
		UserID:        uuid.New(),
		PublicationID: pub.ID.String(),
	}, nil)
	assert.True(t, IsAccessDenied(err))
}

func TestEditContentLiveEditsPublishedOnly(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)
	f.addChannel(-200, true)

	resp, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100, -200), nil)
	require.NoError(t, err)

	published := f.pubs.pubs[uuid.MustParse(resp.Publications[0].ID)]
	published.Status = models.PublicationStatusPublished
	published.TgMessageID = utils.ToPtr(int64(42))

	edited, err := f.flow.EditPostContent(context.Background(), &dto.EditPostContentRequest{
		UserID:  f.userID,
		PostID:  resp.PostID,
		Content: models.PostContent{Text: "updated"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{published.ID.String()}, edited.EditedLive)
	assert.Len(t, f.live.edited, 1)
	assert.Equal(t, "updated", f.posts.posts[uuid.MustParse(resp.PostID)].Content.Text)
}

func TestEditContentPollNotEditableLive(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)

	req := textRequest(f, -100)
	req.Kind = string(models.PostKindPoll)
	req.Content = models.PostContent{Question: "favorite color?", PollOptions: []string{"red", "blue"}}
	resp, err := f.flow.SchedulePost(context.Background(), req, nil)
	require.NoError(t, err)

	pub := f.pubs.pubs[uuid.MustParse(resp.Publications[0].ID)]
	pub.Status = models.PublicationStatusPublished
	pub.TgMessageID = utils.ToPtr(int64(7))

	edited, err := f.flow.EditPostContent(context.Background(), &dto.EditPostContentRequest{
		UserID:  f.userID,
		PostID:  resp.PostID,
		Content: models.PostContent{Question: "favorite shape?", PollOptions: []string{"circle", "square"}},
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, edited.EditedLive)
	assert.Len(t, edited.EditWarning, 1)
	assert.Empty(t, f.live.edited)
}

func TestDeletePostCancelsPendingAndDeletesLive(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)
	f.addChannel(-200, true)

	resp, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100, -200), nil)
	require.NoError(t, err)

	published := f.pubs.pubs[uuid.MustParse(resp.Publications[0].ID)]
	published.Status = models.PublicationStatusPublished
	published.TgMessageID = utils.ToPtr(int64(42))

	deleted, err := f.flow.DeletePost(context.Background(), &dto.DeletePostRequest{
		UserID: f.userID,
		PostID: resp.PostID,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, deleted.Cancelled)
	assert.Equal(t, 1, deleted.Deleted)
	assert.Equal(t, 0, deleted.Failed)
	assert.Len(t, f.live.deleted, 1)
	assert.Empty(t, f.pubs.pubs)
	assert.Empty(t, f.posts.posts)
	assert.Empty(t, f.publishQueue.jobs)
}

func TestDeletePostLiveFailureStillRemovesRows(t *testing.T) {
	f := newFlowFixture(t)
	pub := scheduleOne(t, f)
	pub.Status = models.PublicationStatusPublished
	pub.TgMessageID = utils.ToPtr(int64(42))
	f.live.delErr = errors.New("network timeout")

	deleted, err := f.flow.DeletePost(context.Background(), &dto.DeletePostRequest{
		UserID: f.userID,
		PostID: pub.PostID.String(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, deleted.Failed)
	assert.Equal(t, 0, deleted.Deleted)
	assert.Empty(t, f.pubs.pubs)
	assert.Empty(t, f.posts.posts)
}

func TestListPublicationsFilters(t *testing.T) {
	f := newFlowFixture(t)
	f.addChannel(-100, true)
	f.addChannel(-200, true)

	resp, err := f.flow.SchedulePost(context.Background(), textRequest(f, -100, -200), nil)
	require.NoError(t, err)

	for _, pub := range f.pubs.pubs {
		pub.Post = f.posts.posts[pub.PostID]
	}
	f.pubs.pubs[uuid.MustParse(resp.Publications[0].ID)].Status = models.PublicationStatusPublished

	status := string(models.PublicationStatusPublished)
	listed, err := f.flow.ListPublications(context.Background(), &dto.ListPublicationsRequest{
		UserID: f.userID,
		Status: &status,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, listed.Items, 1)

	listed, err = f.flow.ListPublications(context.Background(), &dto.ListPublicationsRequest{
		UserID: f.userID,
		PostID: &resp.PostID,
	}, nil)
	require.NoError(t, err)
	assert.Len(t, listed.Items, 2)
}
