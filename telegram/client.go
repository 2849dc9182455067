package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.telegram.org"

// Entity-parsing modes accepted by the Bot API in parse_mode fields
const (
	ParseModeHTML       = "HTML"
	ParseModeMarkdown   = "Markdown"
	ParseModeMarkdownV2 = "MarkdownV2"
)

// Config tunes the shared Bot API client
type Config struct {
	BaseURL string
	// CallTimeout bounds one API call end to end
	CallTimeout time.Duration
	// MessagesPerSecond bounds outbound calls across the whole worker pool.
	// The Bot API global limit is ~30 msg/s; stay under it.
	MessagesPerSecond float64
	Burst             int
}

// Client issues Bot API calls for any bot token, throttled by a shared
// limiter. Saturation makes callers wait their turn, it never errors.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	baseURL string
	timeout time.Duration
}

// NewClient creates a Bot API client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	return &Client{
		http:    resty.New().SetHeader("Content-Type", "application/json"),
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst),
		baseURL: cfg.BaseURL,
		timeout: cfg.CallTimeout,
	}
}

// invoke performs one Bot API method call and decodes the result into out
// (out may be nil when only the ok flag matters)
func (c *Client) invoke(ctx context.Context, token, method string, params Params, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram %s: limiter: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var env apiEnvelope
	resp, err := c.http.R().
		SetContext(callCtx).
		SetBody(params).
		SetResult(&env).
		SetError(&env).
		Post(fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method))
	if err != nil {
		// Network failure or timeout: transient by classification
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	if !env.OK {
		apiErr := &APIError{
			Code:        env.ErrorCode,
			Description: env.Description,
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
		}
		return fmt.Errorf("telegram %s: %w", method, apiErr)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// sendMessage returns the sent Message for the given API method
func (c *Client) send(ctx context.Context, token, method string, params Params) (*Message, error) {
	var msg Message
	if err := c.invoke(ctx, token, method, params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) SendMessage(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendMessage", params)
}

func (c *Client) SendPhoto(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendPhoto", params)
}

func (c *Client) SendVideo(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendVideo", params)
}

// SendMediaGroup sends an album of 2..10 items and returns all sent messages
func (c *Client) SendMediaGroup(ctx context.Context, token string, params Params) ([]Message, error) {
	var msgs []Message
	if err := c.invoke(ctx, token, "sendMediaGroup", params, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) SendPoll(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendPoll", params)
}

func (c *Client) SendDocument(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendDocument", params)
}

func (c *Client) SendAudio(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendAudio", params)
}

func (c *Client) SendVoice(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendVoice", params)
}

func (c *Client) SendVideoNote(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendVideoNote", params)
}

func (c *Client) SendLocation(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendLocation", params)
}

func (c *Client) SendContact(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendContact", params)
}

func (c *Client) SendSticker(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendSticker", params)
}

func (c *Client) SendPaidMedia(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "sendPaidMedia", params)
}

// CopyMessage re-sends content without the forward header; the API returns
// only the new message id
func (c *Client) CopyMessage(ctx context.Context, token string, params Params) (*MessageRef, error) {
	var ref MessageRef
	if err := c.invoke(ctx, token, "copyMessage", params, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (c *Client) ForwardMessage(ctx context.Context, token string, params Params) (*Message, error) {
	return c.send(ctx, token, "forwardMessage", params)
}

// PostStory publishes a story on the chat's behalf
func (c *Client) PostStory(ctx context.Context, token string, params Params) (*Story, error) {
	var story Story
	if err := c.invoke(ctx, token, "postStory", params, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

func (c *Client) PinChatMessage(ctx context.Context, token string, params Params) error {
	return c.invoke(ctx, token, "pinChatMessage", params, nil)
}

func (c *Client) SetMessageReaction(ctx context.Context, token string, params Params) error {
	return c.invoke(ctx, token, "setMessageReaction", params, nil)
}

func (c *Client) EditMessageText(ctx context.Context, token string, params Params) error {
	return c.invoke(ctx, token, "editMessageText", params, nil)
}

func (c *Client) EditMessageCaption(ctx context.Context, token string, params Params) error {
	return c.invoke(ctx, token, "editMessageCaption", params, nil)
}

func (c *Client) EditMessageMedia(ctx context.Context, token string, params Params) error {
	return c.invoke(ctx, token, "editMessageMedia", params, nil)
}

func (c *Client) EditMessageReplyMarkup(ctx context.Context, token string, params Params) error {
	return c.invoke(ctx, token, "editMessageReplyMarkup", params, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, token string, params Params) error {
	return c.invoke(ctx, token, "deleteMessage", params, nil)
}
