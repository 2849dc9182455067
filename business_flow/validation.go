package businessflow

import (
	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/telegram"
)

// maxMediaGroupSize is Telegram's cap on sendMediaGroup items
const maxMediaGroupSize = 10

// ValidateContent checks that the content payload carries every field the
// post kind needs before anything touches the database or the queue
func ValidateContent(kind models.PostKind, content *models.PostContent) error {
	if !kind.Valid() {
		return ErrUnknownPostKind
	}

	switch content.Options.ParseMode {
	case "", telegram.ParseModeHTML, telegram.ParseModeMarkdown, telegram.ParseModeMarkdownV2:
	default:
		return ErrParseModeInvalid
	}

	switch kind {
	case models.PostKindStandard:
		if content.Text == "" && len(content.Media) == 0 {
			return ErrTextRequired
		}
		if len(content.Media) > maxMediaGroupSize {
			return ErrTooManyMediaItems
		}
		if len(content.Media) > 1 && len(content.Buttons) > 0 {
			return ErrButtonsNotSupported
		}

	case models.PostKindStory:
		if len(content.Media) != 1 {
			return ErrSingleMediaRequired
		}
		if len(content.Buttons) > 0 {
			return ErrButtonsNotSupported
		}

	case models.PostKindPaidMedia:
		if len(content.Media) == 0 {
			return ErrMediaRequired
		}
		if len(content.Media) > maxMediaGroupSize {
			return ErrTooManyMediaItems
		}
		if content.StarCount <= 0 {
			return ErrStarCountRequired
		}

	case models.PostKindPoll:
		if content.Question == "" {
			return ErrPollQuestionRequired
		}
		if len(content.PollOptions) < 2 || len(content.PollOptions) > 10 {
			return ErrPollOptionsOutOfRange
		}
		if content.IsQuiz {
			if content.CorrectOptionID == nil ||
				*content.CorrectOptionID < 0 ||
				*content.CorrectOptionID >= len(content.PollOptions) {
				return ErrQuizCorrectOptionInvalid
			}
		}

	case models.PostKindDocument, models.PostKindAudio, models.PostKindVoice,
		models.PostKindVideoNote, models.PostKindSticker:
		if len(content.Media) != 1 {
			return ErrSingleMediaRequired
		}

	case models.PostKindLocation:
		if content.Latitude == nil || content.Longitude == nil {
			return ErrCoordinatesRequired
		}

	case models.PostKindContact:
		if content.PhoneNumber == "" || content.FirstName == "" {
			return ErrContactFieldsRequired
		}

	case models.PostKindCopy, models.PostKindForward:
		if content.FromChatID == "" || content.FromMessageID == 0 {
			return ErrSourceMessageRequired
		}
		if kind == models.PostKindForward && len(content.Buttons) > 0 {
			return ErrButtonsNotSupported
		}
	}

	return nil
}

// EditableLive reports whether a published message of this kind can still be
// changed through Telegram's edit methods. Polls, stories, forwards and the
// single-shot media kinds cannot.
func EditableLive(kind models.PostKind) bool {
	switch kind {
	case models.PostKindStandard, models.PostKindDocument, models.PostKindAudio,
		models.PostKindPaidMedia, models.PostKindCopy:
		return true
	}
	return false
}
