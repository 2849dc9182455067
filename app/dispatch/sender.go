// Package dispatch consumes the publishing and deleting queues and talks to
// the Telegram Bot API on behalf of the owning bots.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/telepost/telepost/app/services"
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/telegram"
)

// Sender translates a post template into the Bot API calls for one channel
type Sender struct {
	tg     *telegram.Client
	creds  services.CredentialService
	logger *log.Logger
}

// NewSender creates a sender
func NewSender(tg *telegram.Client, creds services.CredentialService, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Default()
	}
	return &Sender{tg: tg, creds: creds, logger: logger}
}

// Publish sends the post to the publication's channel. It returns the leading
// message id plus warnings from degraded best-effort steps (pin, reactions).
func (s *Sender) Publish(ctx context.Context, pub *models.Publication, post *models.Post, ch *models.Channel) (int64, []string, error) {
	token, err := s.creds.BotToken(ch.Bot)
	if err != nil {
		return 0, nil, err
	}

	chatID := ch.ResolveTarget(pub.TopicID)
	msgID, warnings, err := s.send(ctx, token, chatID, pub, post)
	if err != nil {
		return 0, warnings, err
	}

	warnings = append(warnings, s.afterSend(ctx, token, chatID, msgID, &post.Content.Options)...)
	return msgID, warnings, nil
}

// EditLive rewrites an already published message in place
func (s *Sender) EditLive(ctx context.Context, pub *models.Publication, post *models.Post) error {
	ch, token, err := s.channelAndToken(ctx, pub)
	if err != nil {
		return err
	}
	if pub.TgMessageID == nil {
		return fmt.Errorf("publication %s has no message to edit", pub.ID)
	}

	chatID := ch.ResolveTarget(pub.TopicID)
	content := &post.Content

	params := telegram.Params{
		"chat_id":    chatID,
		"message_id": *pub.TgMessageID,
		"parse_mode": parseMode(content),
	}
	if markup := buttonMarkup(content.Buttons); markup != nil {
		params["reply_markup"] = markup
	}

	if len(content.Media) == 0 && content.Text != "" {
		params["text"] = content.Text
		return s.tg.EditMessageText(ctx, token, params)
	}
	params["caption"] = content.Text
	if content.Options.CaptionAboveMedia {
		params["show_caption_above_media"] = true
	}
	return s.tg.EditMessageCaption(ctx, token, params)
}

// DeleteLive removes a published message. A message already gone counts as
// deleted.
func (s *Sender) DeleteLive(ctx context.Context, pub *models.Publication) error {
	ch, token, err := s.channelAndToken(ctx, pub)
	if err != nil {
		return err
	}
	if pub.TgMessageID == nil {
		return nil
	}

	err = s.tg.DeleteMessage(ctx, token, telegram.Params{
		"chat_id":    ch.ResolveTarget(pub.TopicID),
		"message_id": *pub.TgMessageID,
	})
	if err != nil && telegram.IsFatal(err) {
		s.logger.Printf("sender: message %d in chat %d already gone: %v", *pub.TgMessageID, ch.ID, err)
		return nil
	}
	return err
}

func (s *Sender) channelAndToken(ctx context.Context, pub *models.Publication) (*models.Channel, string, error) {
	ch := pub.Channel
	if ch == nil {
		return nil, "", fmt.Errorf("publication %s has no channel loaded", pub.ID)
	}
	token, err := s.creds.BotToken(ch.Bot)
	if err != nil {
		return nil, "", err
	}
	return ch, token, nil
}

// send performs the kind-specific Bot API call and returns the message id
func (s *Sender) send(ctx context.Context, token string, chatID int64, pub *models.Publication, post *models.Post) (int64, []string, error) {
	content := &post.Content
	params := baseParams(chatID, pub.TopicID, content)

	switch post.Kind {
	case models.PostKindStandard:
		return s.sendStandard(ctx, token, params, content)

	case models.PostKindStory:
		story, err := s.tg.PostStory(ctx, token, telegram.Params{
			"chat_id":       chatID,
			"content":       storyContent(content.Media[0]),
			"active_period": content.ActivePeriod,
		})
		if err != nil {
			return 0, nil, err
		}
		return story.ID, nil, nil

	case models.PostKindPaidMedia:
		params["star_count"] = content.StarCount
		params["media"] = paidMediaItems(content.Media)
		if content.Text != "" {
			params["caption"] = content.Text
		}
		msg, err := s.tg.SendPaidMedia(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindPoll:
		return s.sendPoll(ctx, token, params, content)

	case models.PostKindDocument:
		params["document"] = content.Media[0]
		if content.Text != "" {
			params["caption"] = content.Text
		}
		msg, err := s.tg.SendDocument(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindAudio:
		params["audio"] = content.Media[0]
		if content.Text != "" {
			params["caption"] = content.Text
		}
		if content.Performer != "" {
			params["performer"] = content.Performer
		}
		if content.Title != "" {
			params["title"] = content.Title
		}
		if content.Thumbnail != "" {
			params["thumbnail"] = content.Thumbnail
		}
		msg, err := s.tg.SendAudio(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindVoice:
		params["voice"] = content.Media[0]
		msg, err := s.tg.SendVoice(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindVideoNote:
		params["video_note"] = content.Media[0]
		msg, err := s.tg.SendVideoNote(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindLocation:
		params["latitude"] = *content.Latitude
		params["longitude"] = *content.Longitude
		msg, err := s.tg.SendLocation(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindContact:
		params["phone_number"] = content.PhoneNumber
		params["first_name"] = content.FirstName
		if content.LastName != "" {
			params["last_name"] = content.LastName
		}
		msg, err := s.tg.SendContact(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindSticker:
		params["sticker"] = content.Media[0]
		msg, err := s.tg.SendSticker(ctx, token, params)
		return messageID(msg), nil, err

	case models.PostKindCopy:
		params["from_chat_id"] = content.FromChatID
		params["message_id"] = content.FromMessageID
		if content.Text != "" {
			params["caption"] = content.Text
		}
		ref, err := s.tg.CopyMessage(ctx, token, params)
		if err != nil {
			return 0, nil, err
		}
		return ref.MessageID, nil, nil

	case models.PostKindForward:
		params["from_chat_id"] = content.FromChatID
		params["message_id"] = content.FromMessageID
		msg, err := s.tg.ForwardMessage(ctx, token, params)
		return messageID(msg), nil, err
	}

	return 0, nil, fmt.Errorf("unsupported post kind %q", post.Kind)
}

// sendStandard picks plain text, single photo/video or a media group
func (s *Sender) sendStandard(ctx context.Context, token string, params telegram.Params, content *models.PostContent) (int64, []string, error) {
	switch len(content.Media) {
	case 0:
		params["text"] = content.Text
		msg, err := s.tg.SendMessage(ctx, token, params)
		return messageID(msg), nil, err

	case 1:
		if content.Text != "" {
			params["caption"] = content.Text
		}
		if content.Options.HasSpoiler {
			params["has_spoiler"] = true
		}
		if content.Options.CaptionAboveMedia {
			params["show_caption_above_media"] = true
		}
		var (
			msg *telegram.Message
			err error
		)
		if isVideo(content.Media[0]) {
			params["video"] = content.Media[0]
			msg, err = s.tg.SendVideo(ctx, token, params)
		} else {
			params["photo"] = content.Media[0]
			msg, err = s.tg.SendPhoto(ctx, token, params)
		}
		return messageID(msg), nil, err

	default:
		params["media"] = mediaGroupItems(content)
		msgs, err := s.tg.SendMediaGroup(ctx, token, params)
		if err != nil {
			return 0, nil, err
		}
		if len(msgs) == 0 {
			return 0, nil, fmt.Errorf("empty media group response")
		}
		return msgs[0].MessageID, nil, nil
	}
}

// sendPoll forces anonymity when the channel cannot host a named quiz vote
func (s *Sender) sendPoll(ctx context.Context, token string, params telegram.Params, content *models.PostContent) (int64, []string, error) {
	var warnings []string

	options := make([]telegram.Params, 0, len(content.PollOptions))
	for _, opt := range content.PollOptions {
		options = append(options, telegram.Params{"text": opt})
	}
	params["question"] = content.Question
	params["options"] = options

	anonymous := true
	if content.IsAnonymous != nil {
		anonymous = *content.IsAnonymous
	}
	if !anonymous {
		// Channel polls are always anonymous on Telegram's side
		warnings = append(warnings, "non-anonymous polls are not available in channels, sent anonymously")
		anonymous = true
	}
	params["is_anonymous"] = anonymous

	if content.IsQuiz {
		params["type"] = "quiz"
		params["correct_option_id"] = *content.CorrectOptionID
	}

	msg, err := s.tg.SendPoll(ctx, token, params)
	return messageID(msg), warnings, err
}

// afterSend handles best-effort pinning and reactions. Failures never fail
// the publication, they come back as warnings.
func (s *Sender) afterSend(ctx context.Context, token string, chatID, msgID int64, opts *models.PostOptions) []string {
	var warnings []string

	if opts.Pin {
		err := s.tg.PinChatMessage(ctx, token, telegram.Params{
			"chat_id":              chatID,
			"message_id":           msgID,
			"disable_notification": true,
		})
		if err != nil {
			s.logger.Printf("sender: pin message %d in chat %d failed: %v", msgID, chatID, err)
			warnings = append(warnings, fmt.Sprintf("pin: %v", err))
		}
	}

	if len(opts.Reactions) > 0 {
		reactions := make([]telegram.Params, 0, len(opts.Reactions))
		for _, emoji := range opts.Reactions {
			reactions = append(reactions, telegram.Params{"type": "emoji", "emoji": emoji})
		}
		err := s.tg.SetMessageReaction(ctx, token, telegram.Params{
			"chat_id":    chatID,
			"message_id": msgID,
			"reaction":   reactions,
		})
		if err != nil {
			s.logger.Printf("sender: react to message %d in chat %d failed: %v", msgID, chatID, err)
			warnings = append(warnings, fmt.Sprintf("reactions: %v", err))
		}
	}

	return warnings
}

// parseMode picks the entity-parsing mode for text and captions. Operators
// write HTML unless the post says otherwise.
func parseMode(content *models.PostContent) string {
	if content.Options.ParseMode != "" {
		return content.Options.ParseMode
	}
	return telegram.ParseModeHTML
}

func baseParams(chatID int64, topicID *int64, content *models.PostContent) telegram.Params {
	params := telegram.Params{"chat_id": chatID}
	if topicID != nil {
		params["message_thread_id"] = *topicID
	}
	if content.Text != "" {
		params["parse_mode"] = parseMode(content)
	}
	if content.Options.Silent {
		params["disable_notification"] = true
	}
	if content.Options.ProtectContent {
		params["protect_content"] = true
	}
	if content.Options.MessageEffectID != "" {
		params["message_effect_id"] = content.Options.MessageEffectID
	}
	if markup := buttonMarkup(content.Buttons); markup != nil {
		params["reply_markup"] = markup
	}
	return params
}

func buttonMarkup(buttons [][]models.InlineButton) telegram.Params {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]telegram.Params, 0, len(buttons))
	for _, row := range buttons {
		cells := make([]telegram.Params, 0, len(row))
		for _, b := range row {
			cells = append(cells, telegram.Params{"text": b.Text, "url": b.URL})
		}
		rows = append(rows, cells)
	}
	return telegram.Params{"inline_keyboard": rows}
}

func mediaGroupItems(content *models.PostContent) []telegram.Params {
	items := make([]telegram.Params, 0, len(content.Media))
	for i, url := range content.Media {
		item := telegram.Params{"type": mediaType(url), "media": url}
		if i == 0 && content.Text != "" {
			item["caption"] = content.Text
			item["parse_mode"] = parseMode(content)
			if content.Options.CaptionAboveMedia {
				item["show_caption_above_media"] = true
			}
		}
		if content.Options.HasSpoiler {
			item["has_spoiler"] = true
		}
		items = append(items, item)
	}
	return items
}

func paidMediaItems(media []string) []telegram.Params {
	items := make([]telegram.Params, 0, len(media))
	for _, url := range media {
		items = append(items, telegram.Params{"type": mediaType(url), "media": url})
	}
	return items
}

func storyContent(url string) telegram.Params {
	if isVideo(url) {
		return telegram.Params{"type": "video", "video": url}
	}
	return telegram.Params{"type": "photo", "photo": url}
}

func mediaType(url string) string {
	if isVideo(url) {
		return "video"
	}
	return "photo"
}

var videoExtensions = []string{".mp4", ".mov", ".m4v", ".webm", ".mkv"}

func isVideo(url string) bool {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func messageID(msg *telegram.Message) int64 {
	if msg == nil {
		return 0
	}
	return msg.MessageID
}
