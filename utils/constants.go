package utils

import (
	"time"
)

// Queue names and dispatch constants
const (
	// PublishQueue is the delayed queue consumed by the publish worker
	PublishQueue = "publishing"

	// DeleteQueue is the delayed queue consumed by the delete worker
	DeleteQueue = "deleting"

	// MaxDispatchAttempts caps transient-failure retries per job
	MaxDispatchAttempts = 3

	// DispatchBackoffBase is the first transient-retry delay; each further
	// attempt doubles it
	DispatchBackoffBase = 30 * time.Second

	// RateLimitSafetyMargin is added on top of the platform-signaled wait
	// before a rate-limited job is re-delivered
	RateLimitSafetyMargin = time.Second

	// TelegramCallTimeout bounds a single Bot API call
	TelegramCallTimeout = 30 * time.Second

	// MaxPublicationPageSize bounds listPublications page size
	MaxPublicationPageSize = 100

	// DefaultPublicationPageSize is used when the caller sends no page size
	DefaultPublicationPageSize = 50
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// HTTP constants
const (
	// CORSMaxAge is the max age for CORS preflight cache (24 hours in seconds)
	CORSMaxAge = 86400
)
