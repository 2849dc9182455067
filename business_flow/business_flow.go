// Package businessflow contains the core business logic and use cases for
// scheduling, rescheduling, editing and removing channel publications.
package businessflow

import (
	"context"
	"time"

	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/queue"
)

const RequestIDKey = "X-Request-ID"

// JobQueue is the slice of the delayed queue the flows need: scheduling
// and cancelling jobs. Satisfied by *queue.Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, jobName string, payload any, delay time.Duration, opts queue.Options) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

// LiveEditor edits or deletes messages that already reached Telegram.
// Implemented by the dispatch sender; failures here are surfaced as
// warnings, never as flow errors.
type LiveEditor interface {
	EditLive(ctx context.Context, pub *models.Publication, post *models.Post) error
	DeleteLive(ctx context.Context, pub *models.Publication) error
}

// ClientMetadata holds client-related information for logging and tracing
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}
