package businessflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telepost/telepost/models"
	"github.com/telepost/telepost/utils"
)

func TestValidateContentPerKind(t *testing.T) {
	cases := []struct {
		name    string
		kind    models.PostKind
		content models.PostContent
		wantErr error
	}{
		{"standard text", models.PostKindStandard, models.PostContent{Text: "hi"}, nil},
		{"standard markdown", models.PostKindStandard, models.PostContent{
			Text: "hi", Options: models.PostOptions{ParseMode: "MarkdownV2"},
		}, nil},
		{"standard bad parse mode", models.PostKindStandard, models.PostContent{
			Text: "hi", Options: models.PostOptions{ParseMode: "BBCode"},
		}, ErrParseModeInvalid},
		{"standard album", models.PostKindStandard, models.PostContent{Media: []string{"a.jpg", "b.jpg"}}, nil},
		{"standard empty", models.PostKindStandard, models.PostContent{}, ErrTextRequired},
		{"standard oversized album", models.PostKindStandard, models.PostContent{Media: make([]string, 11)}, ErrTooManyMediaItems},
		{"standard album with buttons", models.PostKindStandard, models.PostContent{
			Media:   []string{"a.jpg", "b.jpg"},
			Buttons: [][]models.InlineButton{{{Text: "go", URL: "https://example.com"}}},
		}, ErrButtonsNotSupported},

		{"story", models.PostKindStory, models.PostContent{Media: []string{"a.mp4"}}, nil},
		{"story without media", models.PostKindStory, models.PostContent{}, ErrSingleMediaRequired},

		{"paid media", models.PostKindPaidMedia, models.PostContent{Media: []string{"a.jpg"}, StarCount: 10}, nil},
		{"paid media without stars", models.PostKindPaidMedia, models.PostContent{Media: []string{"a.jpg"}}, ErrStarCountRequired},

		{"poll", models.PostKindPoll, models.PostContent{Question: "q?", PollOptions: []string{"a", "b"}}, nil},
		{"poll one option", models.PostKindPoll, models.PostContent{Question: "q?", PollOptions: []string{"a"}}, ErrPollOptionsOutOfRange},
		{"quiz without answer", models.PostKindPoll, models.PostContent{
			Question: "q?", PollOptions: []string{"a", "b"}, IsQuiz: true,
		}, ErrQuizCorrectOptionInvalid},
		{"quiz answer out of range", models.PostKindPoll, models.PostContent{
			Question: "q?", PollOptions: []string{"a", "b"}, IsQuiz: true, CorrectOptionID: utils.ToPtr(5),
		}, ErrQuizCorrectOptionInvalid},
		{"quiz valid", models.PostKindPoll, models.PostContent{
			Question: "q?", PollOptions: []string{"a", "b"}, IsQuiz: true, CorrectOptionID: utils.ToPtr(1),
		}, nil},

		{"document", models.PostKindDocument, models.PostContent{Media: []string{"f.pdf"}}, nil},
		{"voice two files", models.PostKindVoice, models.PostContent{Media: []string{"a.ogg", "b.ogg"}}, ErrSingleMediaRequired},

		{"location", models.PostKindLocation, models.PostContent{Latitude: utils.ToPtr(52.5), Longitude: utils.ToPtr(13.4)}, nil},
		{"location missing longitude", models.PostKindLocation, models.PostContent{Latitude: utils.ToPtr(52.5)}, ErrCoordinatesRequired},

		{"contact", models.PostKindContact, models.PostContent{PhoneNumber: "+4915112345678", FirstName: "Ada"}, nil},
		{"contact without name", models.PostKindContact, models.PostContent{PhoneNumber: "+4915112345678"}, ErrContactFieldsRequired},

		{"forward", models.PostKindForward, models.PostContent{FromChatID: "-100200", FromMessageID: 5}, nil},
		{"forward without source", models.PostKindForward, models.PostContent{}, ErrSourceMessageRequired},
		{"copy", models.PostKindCopy, models.PostContent{FromChatID: "-100200", FromMessageID: 5}, nil},

		{"unknown kind", models.PostKind("carousel"), models.PostContent{Text: "hi"}, ErrUnknownPostKind},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateContent(tc.kind, &tc.content)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestEditableLive(t *testing.T) {
	assert.True(t, EditableLive(models.PostKindStandard))
	assert.True(t, EditableLive(models.PostKindDocument))
	assert.False(t, EditableLive(models.PostKindPoll))
	assert.False(t, EditableLive(models.PostKindStory))
	assert.False(t, EditableLive(models.PostKindForward))
	assert.False(t, EditableLive(models.PostKindVideoNote))
}
