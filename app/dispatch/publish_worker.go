package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	businessflow "github.com/telepost/telepost/business_flow"

	"github.com/telepost/telepost/app/dto"
	"github.com/telepost/telepost/app/services"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/queue"
	"github.com/telepost/telepost/repository"
	"github.com/telepost/telepost/telegram"
	"github.com/telepost/telepost/utils"
)

// PublishHandler consumes "send-post" jobs from the publishing queue.
// Outcomes per delivery:
//   - success: publication becomes published, the delete timer is armed
//   - rate limit: the job is re-delayed by the signaled wait, no attempt used
//   - fatal API error: publication becomes failed, the job is dropped
//   - transient error: the error is recorded and the queue retries with backoff
type PublishHandler struct {
	pubRepo     repository.PublicationRepository
	botRepo     repository.BotRepository
	deleteQueue businessflow.JobQueue
	sender      *Sender
	logger      *log.Logger
}

// NewPublishHandler creates the publish job handler
func NewPublishHandler(
	pubRepo repository.PublicationRepository,
	botRepo repository.BotRepository,
	deleteQueue businessflow.JobQueue,
	sender *Sender,
	logger *log.Logger,
) *PublishHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &PublishHandler{
		pubRepo:     pubRepo,
		botRepo:     botRepo,
		deleteQueue: deleteQueue,
		sender:      sender,
		logger:      logger,
	}
}

// Handle processes one delivery of a send-post job
func (h *PublishHandler) Handle(ctx context.Context, job *queue.Job) error {
	var payload dto.PublishJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		h.logger.Printf("publish: job %s carries an unreadable payload, dropping: %v", job.ID, err)
		return nil
	}

	pub, err := h.pubRepo.ByUUIDFull(ctx, payload.PublicationID)
	if err != nil {
		return fmt.Errorf("load publication %s: %w", payload.PublicationID, err)
	}
	if pub == nil {
		h.logger.Printf("publish: publication %s no longer exists, dropping job %s", payload.PublicationID, job.ID)
		return nil
	}
	// A cancelled, failed or already published row never fires again,
	// whatever stale job still points at it
	if pub.Status != models.PublicationStatusScheduled {
		h.logger.Printf("publish: publication %s is %s, dropping job %s", pub.ID, pub.Status, job.ID)
		return nil
	}

	if pub.Channel == nil || pub.Post == nil {
		return h.markFailed(ctx, pub, "publication lost its post or channel")
	}
	if !pub.Channel.IsActive {
		return h.markFailed(ctx, pub, "channel is inactive")
	}

	msgID, warnings, err := h.sender.Publish(ctx, pub, pub.Post, pub.Channel)
	pub.AttemptErrors = append(pub.AttemptErrors, warnings...)
	if err != nil {
		return h.handleSendError(ctx, pub, job, err)
	}

	now := utils.UTCNow()
	pub.Status = models.PublicationStatusPublished
	pub.TgMessageID = &msgID
	pub.PublishedAt = &now
	pub.PublishJob = models.QueueRef{}

	h.armDeleteTimer(ctx, pub)

	if err := h.pubRepo.Update(ctx, pub); err != nil {
		return fmt.Errorf("persist published publication %s: %w", pub.ID, err)
	}

	publicationsPublishedTotal.Inc()
	h.logger.Printf("publish: publication %s published to chat %d as message %d", pub.ID, pub.ChannelID, msgID)
	return nil
}

// handleSendError classifies a Bot API failure and decides the job's fate
func (h *PublishHandler) handleSendError(ctx context.Context, pub *models.Publication, job *queue.Job, sendErr error) error {
	if wait, ok := telegram.RetryAfterOf(sendErr); ok {
		rateLimitedTotal.Inc()
		at := time.Now().Add(wait + utils.RateLimitSafetyMargin)
		h.logger.Printf("publish: publication %s rate limited, retrying at %s", pub.ID, at.Format(time.RFC3339))
		return queue.RedeliverAt(at, fmt.Sprintf("telegram rate limit on publication %s", pub.ID))
	}

	if telegram.IsFatal(sendErr) || errors.Is(sendErr, services.ErrBotInactive) {
		publishFailuresTotal.WithLabelValues(failureReasonFatal).Inc()
		if telegram.IsUnauthorized(sendErr) {
			h.markBotRevoked(ctx, pub)
		}
		return h.markFailed(ctx, pub, sendErr.Error())
	}

	pub.AttemptErrors = append(pub.AttemptErrors,
		fmt.Sprintf("attempt %d: %v", job.AttemptsMade+1, sendErr))

	if job.LastAttempt() {
		publishFailuresTotal.WithLabelValues(failureReasonExhausted).Inc()
		pub.Status = models.PublicationStatusFailed
		if err := h.pubRepo.Update(ctx, pub); err != nil {
			return fmt.Errorf("persist exhausted publication %s: %w", pub.ID, err)
		}
		h.logger.Printf("publish: publication %s failed after %d attempts: %v", pub.ID, job.MaxAttempts, sendErr)
		return sendErr
	}

	publishFailuresTotal.WithLabelValues(failureReasonTransient).Inc()
	if err := h.pubRepo.Update(ctx, pub); err != nil {
		return fmt.Errorf("persist attempt error on publication %s: %w", pub.ID, err)
	}
	h.logger.Printf("publish: publication %s attempt %d/%d failed: %v", pub.ID, job.AttemptsMade+1, job.MaxAttempts, sendErr)
	return sendErr
}

// armDeleteTimer schedules the timed deletion once the message exists.
// An enqueue failure degrades to a recorded warning, the message stays up.
func (h *PublishHandler) armDeleteTimer(ctx context.Context, pub *models.Publication) {
	if pub.DeleteAt == nil {
		return
	}

	jobID, err := h.deleteQueue.Enqueue(ctx,
		dto.JobDeletePost,
		dto.DeleteJobPayload{PublicationID: pub.ID},
		utils.DelayUntil(*pub.DeleteAt),
		queue.Options{
			MaxAttempts: utils.MaxDispatchAttempts,
			Backoff:     utils.DispatchBackoffBase,
		},
	)
	if err != nil {
		h.logger.Printf("publish: arming delete timer for publication %s failed: %v", pub.ID, err)
		pub.AttemptErrors = append(pub.AttemptErrors, fmt.Sprintf("delete timer: %v", err))
		return
	}
	pub.DeleteJob = models.QueueRef{Queue: utils.DeleteQueue, JobID: jobID}
}

// markBotRevoked flags the channel's bot after a 401, so later schedule
// requests refuse the dead credential instead of queueing doomed jobs
func (h *PublishHandler) markBotRevoked(ctx context.Context, pub *models.Publication) {
	if pub.Channel == nil || pub.Channel.Bot == nil {
		return
	}
	bot := pub.Channel.Bot
	if bot.Status == models.BotStatusRevoked {
		return
	}
	bot.Status = models.BotStatusRevoked
	if err := h.botRepo.Update(ctx, bot); err != nil {
		h.logger.Printf("publish: flagging bot %s as revoked failed: %v", bot.ID, err)
		return
	}
	h.logger.Printf("publish: bot %s flagged as revoked", bot.ID)
}

func (h *PublishHandler) markFailed(ctx context.Context, pub *models.Publication, reason string) error {
	pub.Status = models.PublicationStatusFailed
	pub.PublishJob = models.QueueRef{}
	pub.AttemptErrors = append(pub.AttemptErrors, reason)
	if err := h.pubRepo.Update(ctx, pub); err != nil {
		return fmt.Errorf("persist failed publication %s: %w", pub.ID, err)
	}
	h.logger.Printf("publish: publication %s failed permanently: %s", pub.ID, reason)
	return nil
}
