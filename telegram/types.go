package telegram

import "encoding/json"

// Params carries the JSON body of a single Bot API call. Callers build it
// field by field; nil values must be left out, not set to null.
type Params map[string]any

// apiEnvelope is the uniform Bot API response wrapper
type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// Chat is the minimal chat shape the dispatcher needs back from the API
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Message is the subset of the Bot API Message object we persist from
type Message struct {
	MessageID int64 `json:"message_id"`
	Chat      Chat  `json:"chat"`
	Date      int64 `json:"date"`
}

// MessageRef is returned by copyMessage, which yields only the new id
type MessageRef struct {
	MessageID int64 `json:"message_id"`
}

// Story is returned by postStory
type Story struct {
	ID   int64 `json:"id"`
	Chat Chat  `json:"chat"`
}
