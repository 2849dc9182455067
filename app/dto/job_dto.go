package dto

import "github.com/google/uuid"

// Job names carried on the dispatch queues
const (
	JobSendPost   = "send-post"
	JobDeletePost = "delete-post"
)

// PublishJobPayload is the body of a "send-post" job
type PublishJobPayload struct {
	PublicationID uuid.UUID `json:"publication_id"`
}

// DeleteJobPayload is the body of a "delete-post" job
type DeleteJobPayload struct {
	PublicationID uuid.UUID `json:"publication_id"`
}
