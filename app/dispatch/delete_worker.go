package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/telepost/telepost/app/dto"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/queue"
	"github.com/telepost/telepost/repository"
	"github.com/telepost/telepost/telegram"
	"github.com/telepost/telepost/utils"
)

// DeleteHandler consumes "delete-post" jobs from the deleting queue.
// Deletion is idempotent: a message that is already gone, or a publication
// that never reached Telegram, counts as done.
type DeleteHandler struct {
	pubRepo repository.PublicationRepository
	sender  *Sender
	logger  *log.Logger
}

// NewDeleteHandler creates the delete job handler
func NewDeleteHandler(pubRepo repository.PublicationRepository, sender *Sender, logger *log.Logger) *DeleteHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &DeleteHandler{pubRepo: pubRepo, sender: sender, logger: logger}
}

// Handle processes one delivery of a delete-post job
func (h *DeleteHandler) Handle(ctx context.Context, job *queue.Job) error {
	var payload dto.DeleteJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		h.logger.Printf("delete: job %s carries an unreadable payload, dropping: %v", job.ID, err)
		return nil
	}

	pub, err := h.pubRepo.ByUUIDFull(ctx, payload.PublicationID)
	if err != nil {
		return fmt.Errorf("load publication %s: %w", payload.PublicationID, err)
	}
	if pub == nil {
		h.logger.Printf("delete: publication %s no longer exists, dropping job %s", payload.PublicationID, job.ID)
		return nil
	}
	if pub.Status != models.PublicationStatusPublished || pub.TgMessageID == nil {
		h.logger.Printf("delete: publication %s is %s, nothing to remove", pub.ID, pub.Status)
		return nil
	}

	if err := h.sender.DeleteLive(ctx, pub); err != nil {
		if wait, ok := telegram.RetryAfterOf(err); ok {
			rateLimitedTotal.Inc()
			at := time.Now().Add(wait + utils.RateLimitSafetyMargin)
			return queue.RedeliverAt(at, fmt.Sprintf("telegram rate limit on publication %s", pub.ID))
		}
		pub.AttemptErrors = append(pub.AttemptErrors,
			fmt.Sprintf("delete attempt %d: %v", job.AttemptsMade+1, err))

		// Deletion is terminal either way. Once the attempts are spent the
		// row still flips to deleted, the failed API call stays a warning.
		if job.LastAttempt() {
			pub.Status = models.PublicationStatusDeleted
			pub.DeleteJob = models.QueueRef{}
			if updateErr := h.pubRepo.Update(ctx, pub); updateErr != nil {
				return fmt.Errorf("persist deleted publication %s: %w", pub.ID, updateErr)
			}
			h.logger.Printf("delete: publication %s marked deleted after %d failed attempts: %v", pub.ID, job.MaxAttempts, err)
			return err
		}

		if updateErr := h.pubRepo.Update(ctx, pub); updateErr != nil {
			return fmt.Errorf("persist delete error on publication %s: %w", pub.ID, updateErr)
		}
		h.logger.Printf("delete: publication %s attempt %d/%d failed: %v", pub.ID, job.AttemptsMade+1, job.MaxAttempts, err)
		return err
	}

	pub.Status = models.PublicationStatusDeleted
	pub.DeleteJob = models.QueueRef{}
	if err := h.pubRepo.Update(ctx, pub); err != nil {
		return fmt.Errorf("persist deleted publication %s: %w", pub.ID, err)
	}

	publicationsDeletedTotal.Inc()
	h.logger.Printf("delete: publication %s removed from chat %d", pub.ID, pub.ChannelID)
	return nil
}
