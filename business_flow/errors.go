// Package businessflow contains the core business logic and use cases for
// scheduling, rescheduling, editing and removing channel publications.
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Lookup and ownership errors
	ErrPostNotFound        = errors.New("post not found")
	ErrPublicationNotFound = errors.New("publication not found")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrAccessDenied        = errors.New("access denied")

	// Scheduling errors
	ErrNoChannels            = errors.New("at least one channel is required")
	ErrNoActiveChannels      = errors.New("none of the requested channels is active")
	ErrDeleteBeforePublish   = errors.New("delete time must be after publish time")
	ErrPublicationNotPending = errors.New("publication is not awaiting publish")
	ErrQueueUnavailable      = errors.New("job queue is unavailable")

	// Content errors
	ErrUnknownPostKind          = errors.New("unknown post kind")
	ErrTextRequired             = errors.New("text is required")
	ErrMediaRequired            = errors.New("a media file is required")
	ErrSingleMediaRequired      = errors.New("exactly one media file is required")
	ErrTooManyMediaItems        = errors.New("a media group holds at most 10 items")
	ErrPollQuestionRequired     = errors.New("poll question is required")
	ErrPollOptionsOutOfRange    = errors.New("a poll needs between 2 and 10 options")
	ErrQuizCorrectOptionInvalid = errors.New("quiz correct option must index a poll option")
	ErrStarCountRequired        = errors.New("paid media requires a positive star count")
	ErrCoordinatesRequired      = errors.New("latitude and longitude are required")
	ErrContactFieldsRequired    = errors.New("phone number and first name are required")
	ErrSourceMessageRequired    = errors.New("source chat and message are required")
	ErrButtonsNotSupported      = errors.New("inline buttons are not supported for this kind")
	ErrParseModeInvalid         = errors.New("unsupported parse mode")
	ErrContentNotEditable       = errors.New("published messages of this kind cannot be edited")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsPostNotFound(err error) bool {
	return errors.Is(err, ErrPostNotFound)
}

func IsPublicationNotFound(err error) bool {
	return errors.Is(err, ErrPublicationNotFound)
}

func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

func IsNoChannels(err error) bool {
	return errors.Is(err, ErrNoChannels)
}

func IsNoActiveChannels(err error) bool {
	return errors.Is(err, ErrNoActiveChannels)
}

func IsDeleteBeforePublish(err error) bool {
	return errors.Is(err, ErrDeleteBeforePublish)
}

func IsPublicationNotPending(err error) bool {
	return errors.Is(err, ErrPublicationNotPending)
}

func IsQueueUnavailable(err error) bool {
	return errors.Is(err, ErrQueueUnavailable)
}

func IsUnknownPostKind(err error) bool {
	return errors.Is(err, ErrUnknownPostKind)
}

func IsContentInvalid(err error) bool {
	switch {
	case errors.Is(err, ErrTextRequired),
		errors.Is(err, ErrMediaRequired),
		errors.Is(err, ErrSingleMediaRequired),
		errors.Is(err, ErrTooManyMediaItems),
		errors.Is(err, ErrPollQuestionRequired),
		errors.Is(err, ErrPollOptionsOutOfRange),
		errors.Is(err, ErrQuizCorrectOptionInvalid),
		errors.Is(err, ErrStarCountRequired),
		errors.Is(err, ErrCoordinatesRequired),
		errors.Is(err, ErrContactFieldsRequired),
		errors.Is(err, ErrSourceMessageRequired),
		errors.Is(err, ErrButtonsNotSupported),
		errors.Is(err, ErrParseModeInvalid):
		return true
	}
	return false
}

func IsContentNotEditable(err error) bool {
	return errors.Is(err, ErrContentNotEditable)
}
