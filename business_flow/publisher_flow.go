// Package businessflow contains the core business logic and use cases for
// scheduling, rescheduling, editing and removing channel publications.
package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/telepost/telepost/app/dto"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/queue"
	"github.com/telepost/telepost/repository"
	"github.com/telepost/telepost/utils"
)

// PublisherFlow handles the scheduled publication business logic
type PublisherFlow interface {
	SchedulePost(ctx context.Context, req *dto.SchedulePostRequest, metadata *ClientMetadata) (*dto.SchedulePostResponse, error)
	AddChannels(ctx context.Context, req *dto.AddChannelsRequest, metadata *ClientMetadata) (*dto.AddChannelsResponse, error)
	Reschedule(ctx context.Context, req *dto.ReschedulePublicationRequest, metadata *ClientMetadata) (*dto.ReschedulePublicationResponse, error)
	CancelPublication(ctx context.Context, req *dto.CancelPublicationRequest, metadata *ClientMetadata) (*dto.CancelPublicationResponse, error)
	EditPostContent(ctx context.Context, req *dto.EditPostContentRequest, metadata *ClientMetadata) (*dto.EditPostContentResponse, error)
	DeletePost(ctx context.Context, req *dto.DeletePostRequest, metadata *ClientMetadata) (*dto.DeletePostResponse, error)
	ListPublications(ctx context.Context, req *dto.ListPublicationsRequest, metadata *ClientMetadata) (*dto.ListPublicationsResponse, error)
}

// PublisherFlowImpl implements the publisher business flow
type PublisherFlowImpl struct {
	postRepo     repository.PostRepository
	pubRepo      repository.PublicationRepository
	channelRepo  repository.ChannelRepository
	publishQueue JobQueue
	deleteQueue  JobQueue
	live         LiveEditor
	db           *gorm.DB
	logger       *log.Logger
}

// NewPublisherFlow creates a new publisher flow instance
func NewPublisherFlow(
	postRepo repository.PostRepository,
	pubRepo repository.PublicationRepository,
	channelRepo repository.ChannelRepository,
	publishQueue JobQueue,
	deleteQueue JobQueue,
	live LiveEditor,
	db *gorm.DB,
	logger *log.Logger,
) PublisherFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &PublisherFlowImpl{
		postRepo:     postRepo,
		pubRepo:      pubRepo,
		channelRepo:  channelRepo,
		publishQueue: publishQueue,
		deleteQueue:  deleteQueue,
		live:         live,
		db:           db,
		logger:       logger,
	}
}

// SchedulePost validates the content, creates the post template and fans a
// publication out to every requested active channel. Inactive channels are
// skipped and reported, not treated as errors.
func (s *PublisherFlowImpl) SchedulePost(ctx context.Context, req *dto.SchedulePostRequest, metadata *ClientMetadata) (*dto.SchedulePostResponse, error) {
	kind := models.PostKind(req.Kind)
	if err := ValidateContent(kind, &req.Content); err != nil {
		return nil, NewBusinessError("POST_VALIDATION_FAILED", "Post validation failed", err)
	}
	if len(req.ChannelIDs) == 0 {
		return nil, NewBusinessError("POST_VALIDATION_FAILED", "Post validation failed", ErrNoChannels)
	}
	if req.DeleteAt != nil && !req.DeleteAt.After(req.PublishAt) {
		return nil, NewBusinessError("POST_VALIDATION_FAILED", "Post validation failed", ErrDeleteBeforePublish)
	}

	channels, skipped, err := s.resolveChannels(ctx, req.UserID, req.ChannelIDs)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:      uuid.New(),
		OwnerID: req.UserID,
		Kind:    kind,
		Content: req.Content,
		Name:    req.Name,
	}

	publications := make([]*models.Publication, 0, len(channels))
	for _, ch := range channels {
		publications = append(publications, &models.Publication{
			ID:        uuid.New(),
			PostID:    post.ID,
			ChannelID: ch.ID,
			PublishAt: req.PublishAt.UTC(),
			DeleteAt:  req.DeleteAt,
			TopicID:   req.TopicID,
			Status:    models.PublicationStatusScheduled,
		})
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.postRepo.Save(txCtx, post); err != nil {
			return fmt.Errorf("save post: %w", err)
		}
		if err := s.pubRepo.SaveBatch(txCtx, publications); err != nil {
			return fmt.Errorf("save publications: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("POST_CREATION_FAILED", "Post creation failed", err)
	}

	// A publication without a backing job would never fire, so an enqueue
	// failure fails the whole call and removes the rows just written.
	if err := s.enqueueBatch(ctx, publications); err != nil {
		s.logger.Printf("schedule: enqueue for post %s failed, rolling back: %v", post.ID, err)
		if delErr := s.pubRepo.DeleteByPost(ctx, post.ID); delErr != nil {
			s.logger.Printf("schedule: removing publications of post %s failed: %v", post.ID, delErr)
		}
		if delErr := s.postRepo.Delete(ctx, post.ID); delErr != nil {
			s.logger.Printf("schedule: removing post %s failed: %v", post.ID, delErr)
		}
		return nil, NewBusinessError("QUEUE_UNAVAILABLE", "Failed to enqueue publish jobs", ErrQueueUnavailable)
	}

	items := make([]dto.PublicationDTO, 0, len(publications))
	for _, pub := range publications {
		items = append(items, dto.ToPublicationDTO(pub))
	}

	return &dto.SchedulePostResponse{
		Message:      "Post scheduled successfully",
		PostID:       post.ID.String(),
		Publications: items,
		Skipped:      skipped,
	}, nil
}

// AddChannels fans an existing post out to channels that were not part of the
// original schedule. Channels already carrying a pending or published
// publication for this post are skipped, so repeating a request cannot
// duplicate a message.
func (s *PublisherFlowImpl) AddChannels(ctx context.Context, req *dto.AddChannelsRequest, metadata *ClientMetadata) (*dto.AddChannelsResponse, error) {
	if len(req.ChannelIDs) == 0 {
		return nil, NewBusinessError("POST_VALIDATION_FAILED", "Post validation failed", ErrNoChannels)
	}
	if req.DeleteAt != nil && !req.DeleteAt.After(req.PublishAt) {
		return nil, NewBusinessError("POST_VALIDATION_FAILED", "Post validation failed", ErrDeleteBeforePublish)
	}

	post, err := s.getOwnedPost(ctx, req.UserID, req.PostID)
	if err != nil {
		return nil, err
	}

	channels, skipped, err := s.resolveChannels(ctx, req.UserID, req.ChannelIDs)
	if err != nil {
		return nil, err
	}

	existing, err := s.pubRepo.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to lookup publications", err)
	}
	covered := make(map[int64]bool, len(existing))
	for _, pub := range existing {
		if pub.Status == models.PublicationStatusScheduled || pub.Status == models.PublicationStatusPublished {
			covered[pub.ChannelID] = true
		}
	}

	publications := make([]*models.Publication, 0, len(channels))
	for _, ch := range channels {
		if covered[ch.ID] {
			skipped = append(skipped, ch.ID)
			continue
		}
		publications = append(publications, &models.Publication{
			ID:        uuid.New(),
			PostID:    post.ID,
			ChannelID: ch.ID,
			PublishAt: req.PublishAt.UTC(),
			DeleteAt:  req.DeleteAt,
			TopicID:   req.TopicID,
			Status:    models.PublicationStatusScheduled,
		})
	}
	if len(publications) == 0 {
		return nil, NewBusinessError("NO_ACTIVE_CHANNELS", "No channels left to add", ErrNoActiveChannels)
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.pubRepo.SaveBatch(txCtx, publications)
	})
	if err != nil {
		return nil, NewBusinessError("POST_CREATION_FAILED", "Post creation failed", err)
	}

	if err := s.enqueueBatch(ctx, publications); err != nil {
		s.logger.Printf("add channels: enqueue for post %s failed, rolling back: %v", post.ID, err)
		for _, pub := range publications {
			if delErr := s.pubRepo.Delete(ctx, pub.ID); delErr != nil {
				s.logger.Printf("add channels: removing publication %s failed: %v", pub.ID, delErr)
			}
		}
		return nil, NewBusinessError("QUEUE_UNAVAILABLE", "Failed to enqueue publish jobs", ErrQueueUnavailable)
	}

	items := make([]dto.PublicationDTO, 0, len(publications))
	for _, pub := range publications {
		items = append(items, dto.ToPublicationDTO(pub))
	}

	return &dto.AddChannelsResponse{
		Message:      "Channels added successfully",
		PostID:       post.ID.String(),
		Publications: items,
		Skipped:      skipped,
	}, nil
}

// Reschedule moves a pending publication to a new publish time. The old
// queue job is cancelled before the replacement is enqueued so the message
// can never fire twice.
func (s *PublisherFlowImpl) Reschedule(ctx context.Context, req *dto.ReschedulePublicationRequest, metadata *ClientMetadata) (*dto.ReschedulePublicationResponse, error) {
	if req.DeleteAt != nil && !req.DeleteAt.After(req.PublishAt) {
		return nil, NewBusinessError("RESCHEDULE_VALIDATION_FAILED", "Reschedule validation failed", ErrDeleteBeforePublish)
	}

	pub, err := s.getOwnedPublication(ctx, req.UserID, req.PublicationID)
	if err != nil {
		return nil, err
	}
	if pub.Status != models.PublicationStatusScheduled {
		return nil, NewBusinessError("PUBLICATION_NOT_PENDING", "Publication is not awaiting publish", ErrPublicationNotPending)
	}

	if !pub.PublishJob.IsZero() {
		if err := s.publishQueue.Cancel(ctx, pub.PublishJob.JobID); err != nil {
			return nil, NewBusinessError("QUEUE_UNAVAILABLE", "Failed to cancel the pending job", ErrQueueUnavailable)
		}
	}

	pub.PublishAt = req.PublishAt.UTC()
	pub.DeleteAt = req.DeleteAt
	if err := s.enqueuePublish(ctx, pub); err != nil {
		pub.Status = models.PublicationStatusFailed
		pub.AttemptErrors = append(pub.AttemptErrors, fmt.Sprintf("enqueue: %v", err))
		_ = s.pubRepo.Update(ctx, pub)
		return nil, NewBusinessError("QUEUE_UNAVAILABLE", "Failed to enqueue the new job", ErrQueueUnavailable)
	}
	if err := s.pubRepo.Update(ctx, pub); err != nil {
		return nil, NewBusinessError("RESCHEDULE_FAILED", "Reschedule failed", err)
	}

	return &dto.ReschedulePublicationResponse{
		Message:     "Publication rescheduled successfully",
		Publication: dto.ToPublicationDTO(pub),
	}, nil
}

// CancelPublication withdraws one pending publication, removing its queue
// jobs and its row. A leased job racing the removal drops itself on the
// dispatcher's existence check.
func (s *PublisherFlowImpl) CancelPublication(ctx context.Context, req *dto.CancelPublicationRequest, metadata *ClientMetadata) (*dto.CancelPublicationResponse, error) {
	pub, err := s.getOwnedPublication(ctx, req.UserID, req.PublicationID)
	if err != nil {
		return nil, err
	}
	if pub.Status != models.PublicationStatusScheduled {
		return nil, NewBusinessError("PUBLICATION_NOT_PENDING", "Publication is not awaiting publish", ErrPublicationNotPending)
	}

	if err := s.cancelJobs(ctx, pub); err != nil {
		return nil, NewBusinessError("QUEUE_UNAVAILABLE", "Failed to cancel the pending job", ErrQueueUnavailable)
	}

	pub.Status = models.PublicationStatusDeleted
	pub.PublishJob = models.QueueRef{}
	pub.DeleteJob = models.QueueRef{}
	if err := s.pubRepo.Delete(ctx, pub.ID); err != nil {
		return nil, NewBusinessError("CANCEL_FAILED", "Cancel failed", err)
	}

	return &dto.CancelPublicationResponse{
		Message:     "Publication cancelled successfully",
		Publication: dto.ToPublicationDTO(pub),
	}, nil
}

// EditPostContent replaces the template content and live-edits every already
// published message whose kind Telegram still allows to change. Live edit
// failures degrade to warnings so a single revoked channel cannot block the
// content update.
func (s *PublisherFlowImpl) EditPostContent(ctx context.Context, req *dto.EditPostContentRequest, metadata *ClientMetadata) (*dto.EditPostContentResponse, error) {
	post, err := s.getOwnedPost(ctx, req.UserID, req.PostID)
	if err != nil {
		return nil, err
	}
	if err := ValidateContent(post.Kind, &req.Content); err != nil {
		return nil, NewBusinessError("POST_VALIDATION_FAILED", "Post validation failed", err)
	}

	post.Content = req.Content
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, NewBusinessError("POST_UPDATE_FAILED", "Post update failed", err)
	}

	publications, err := s.pubRepo.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, NewBusinessError("POST_UPDATE_FAILED", "Post update failed", err)
	}

	resp := &dto.EditPostContentResponse{
		Message: "Post content updated successfully",
		PostID:  post.ID.String(),
	}
	for _, pub := range publications {
		if pub.Status != models.PublicationStatusPublished || pub.TgMessageID == nil {
			continue
		}
		if !EditableLive(post.Kind) {
			resp.EditWarning = append(resp.EditWarning,
				fmt.Sprintf("publication %s: %s messages cannot be edited after publishing", pub.ID, post.Kind))
			continue
		}
		if s.live == nil {
			continue
		}
		if err := s.live.EditLive(ctx, pub, post); err != nil {
			s.logger.Printf("edit: live edit of publication %s failed: %v", pub.ID, err)
			resp.EditWarning = append(resp.EditWarning,
				fmt.Sprintf("publication %s: %v", pub.ID, err))
			continue
		}
		resp.EditedLive = append(resp.EditedLive, pub.ID.String())
	}

	return resp, nil
}

// DeletePost removes the post and every one of its publications. Pending
// queue jobs are cancelled and already published messages are best-effort
// deleted; a failed live delete is counted and logged, the rows go away
// regardless.
func (s *PublisherFlowImpl) DeletePost(ctx context.Context, req *dto.DeletePostRequest, metadata *ClientMetadata) (*dto.DeletePostResponse, error) {
	post, err := s.getOwnedPost(ctx, req.UserID, req.PostID)
	if err != nil {
		return nil, err
	}

	publications, err := s.pubRepo.ListByPost(ctx, post.ID)
	if err != nil {
		return nil, NewBusinessError("POST_DELETE_FAILED", "Post delete failed", err)
	}

	resp := &dto.DeletePostResponse{
		Message: "Post deleted successfully",
		PostID:  post.ID.String(),
	}
	for _, pub := range publications {
		if err := s.cancelJobs(ctx, pub); err != nil {
			return nil, NewBusinessError("QUEUE_UNAVAILABLE", "Failed to cancel a pending job", ErrQueueUnavailable)
		}

		switch pub.Status {
		case models.PublicationStatusScheduled:
			resp.Cancelled++

		case models.PublicationStatusPublished:
			if s.live == nil || pub.TgMessageID == nil {
				continue
			}
			if err := s.live.DeleteLive(ctx, pub); err != nil {
				s.logger.Printf("delete: live delete of publication %s failed: %v", pub.ID, err)
				resp.Failed++
				continue
			}
			resp.Deleted++
		}
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.pubRepo.DeleteByPost(txCtx, post.ID); err != nil {
			return fmt.Errorf("delete publications: %w", err)
		}
		if err := s.postRepo.Delete(txCtx, post.ID); err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("POST_DELETE_FAILED", "Post delete failed", err)
	}

	return resp, nil
}

// ListPublications returns a page of the user's publications, newest first
func (s *PublisherFlowImpl) ListPublications(ctx context.Context, req *dto.ListPublicationsRequest, metadata *ClientMetadata) (*dto.ListPublicationsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > utils.MaxPublicationPageSize {
		pageSize = utils.DefaultPublicationPageSize
	}

	var filter repository.PublicationFilter
	if req.PostID != nil {
		postID, err := uuid.Parse(*req.PostID)
		if err != nil {
			return nil, NewBusinessError("PUBLICATION_LIST_FAILED", "Invalid post id", err)
		}
		filter.PostID = &postID
	}
	if req.Status != nil {
		status := models.PublicationStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("PUBLICATION_LIST_FAILED", "Invalid publication status", fmt.Errorf("unknown status %q", *req.Status))
		}
		filter.Status = &status
	}

	rows, err := s.pubRepo.ListByOwner(ctx, req.UserID, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("PUBLICATION_LIST_FAILED", "Failed to list publications", err)
	}

	items := make([]dto.PublicationDTO, 0, len(rows))
	for _, pub := range rows {
		items = append(items, dto.ToPublicationDTO(pub))
	}

	return &dto.ListPublicationsResponse{
		Message: "Publications listed successfully",
		Items:   items,
		Page:    page,
	}, nil
}

// resolveChannels loads the requested channels, enforces ownership and drops
// inactive ones. Unknown ids are an error; inactive ones are only reported.
func (s *PublisherFlowImpl) resolveChannels(ctx context.Context, userID uuid.UUID, ids []int64) ([]*models.Channel, []int64, error) {
	channels, err := s.channelRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to lookup channels", err)
	}

	byID := make(map[int64]*models.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	active := make([]*models.Channel, 0, len(ids))
	var skipped []int64
	for _, id := range ids {
		ch, ok := byID[id]
		if !ok {
			return nil, nil, NewBusinessErrorf("CHANNEL_NOT_FOUND", "Channel %d not found", ErrChannelNotFound, id)
		}
		if ch.Bot == nil || ch.Bot.UserID != userID {
			return nil, nil, NewBusinessErrorf("CHANNEL_ACCESS_DENIED", "Channel %d access denied", ErrAccessDenied, id)
		}
		if !ch.IsActive {
			skipped = append(skipped, id)
			continue
		}
		active = append(active, ch)
	}
	if len(active) == 0 {
		return nil, nil, NewBusinessError("NO_ACTIVE_CHANNELS", "No active channels to publish to", ErrNoActiveChannels)
	}
	return active, skipped, nil
}

// enqueuePublish schedules the send job and records its queue reference
func (s *PublisherFlowImpl) enqueuePublish(ctx context.Context, pub *models.Publication) error {
	jobID, err := s.publishQueue.Enqueue(ctx,
		dto.JobSendPost,
		dto.PublishJobPayload{PublicationID: pub.ID},
		utils.DelayUntil(pub.PublishAt),
		queue.Options{
			MaxAttempts: utils.MaxDispatchAttempts,
			Backoff:     utils.DispatchBackoffBase,
		},
	)
	if err != nil {
		return err
	}
	pub.PublishJob = models.QueueRef{Queue: utils.PublishQueue, JobID: jobID}
	return nil
}

// enqueueBatch schedules a publish job per publication and persists the job
// references. On any failure every job enqueued so far is cancelled, so the
// queue never keeps an entry the caller is about to roll back.
func (s *PublisherFlowImpl) enqueueBatch(ctx context.Context, publications []*models.Publication) error {
	enqueued := make([]*models.Publication, 0, len(publications))
	for _, pub := range publications {
		if err := s.enqueuePublish(ctx, pub); err != nil {
			s.cancelEnqueued(ctx, enqueued)
			return err
		}
		enqueued = append(enqueued, pub)
	}
	for _, pub := range publications {
		if err := s.pubRepo.Update(ctx, pub); err != nil {
			s.cancelEnqueued(ctx, enqueued)
			return err
		}
	}
	return nil
}

func (s *PublisherFlowImpl) cancelEnqueued(ctx context.Context, publications []*models.Publication) {
	for _, pub := range publications {
		if err := s.publishQueue.Cancel(ctx, pub.PublishJob.JobID); err != nil {
			s.logger.Printf("schedule: cancelling job %s after enqueue failure: %v", pub.PublishJob.JobID, err)
		}
	}
}

// cancelJobs withdraws whatever queue jobs the publication still references
func (s *PublisherFlowImpl) cancelJobs(ctx context.Context, pub *models.Publication) error {
	if !pub.PublishJob.IsZero() {
		if err := s.publishQueue.Cancel(ctx, pub.PublishJob.JobID); err != nil {
			return err
		}
	}
	if !pub.DeleteJob.IsZero() {
		if err := s.deleteQueue.Cancel(ctx, pub.DeleteJob.JobID); err != nil {
			return err
		}
	}
	return nil
}

// getOwnedPublication loads a publication and enforces that the caller owns
// the post behind it
func (s *PublisherFlowImpl) getOwnedPublication(ctx context.Context, userID uuid.UUID, rawID string) (*models.Publication, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NewBusinessError("PUBLICATION_NOT_FOUND", "Publication not found", ErrPublicationNotFound)
	}
	pub, err := s.pubRepo.ByUUIDFull(ctx, id)
	if err != nil {
		return nil, NewBusinessError("PUBLICATION_LOOKUP_FAILED", "Failed to lookup publication", err)
	}
	if pub == nil {
		return nil, NewBusinessError("PUBLICATION_NOT_FOUND", "Publication not found", ErrPublicationNotFound)
	}
	if pub.Post == nil || pub.Post.OwnerID != userID {
		return nil, NewBusinessError("PUBLICATION_ACCESS_DENIED", "Publication access denied", ErrAccessDenied)
	}
	return pub, nil
}

// getOwnedPost loads a post and enforces ownership
func (s *PublisherFlowImpl) getOwnedPost(ctx context.Context, userID uuid.UUID, rawID string) (*models.Post, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NewBusinessError("POST_NOT_FOUND", "Post not found", ErrPostNotFound)
	}
	post, err := s.postRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("POST_LOOKUP_FAILED", "Failed to lookup post", err)
	}
	if post == nil {
		return nil, NewBusinessError("POST_NOT_FOUND", "Post not found", ErrPostNotFound)
	}
	if post.OwnerID != userID {
		return nil, NewBusinessError("POST_ACCESS_DENIED", "Post access denied", ErrAccessDenied)
	}
	return post, nil
}
