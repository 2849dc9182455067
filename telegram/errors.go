// Package telegram is a thin typed client over the Telegram Bot API.
package telegram

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a structured Bot API failure: a numeric error code, the
// platform description and, for 429 responses, the required wait.
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram api error %d: %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// RetryAfterOf extracts the platform-required wait from a rate-limit error.
// The second return is false for every other kind of failure.
func RetryAfterOf(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		wait := apiErr.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		return wait, true
	}
	return 0, false
}

// IsUnauthorized reports whether the platform rejected the bot token itself,
// which happens when the token was revoked via BotFather.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == 401
}

// IsFatal reports whether the error is a permanent Bot API rejection that
// no amount of retrying will fix: bad request, unauthorized or forbidden.
func IsFatal(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case 400, 401, 403:
		return true
	default:
		return false
	}
}
