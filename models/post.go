package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostKind discriminates the content payload of a post template
type PostKind string

const (
	PostKindStandard  PostKind = "standard"
	PostKindStory     PostKind = "story"
	PostKindPaidMedia PostKind = "paid_media"
	PostKindPoll      PostKind = "poll"
	PostKindDocument  PostKind = "document"
	PostKindAudio     PostKind = "audio"
	PostKindVoice     PostKind = "voice"
	PostKindVideoNote PostKind = "video_note"
	PostKindLocation  PostKind = "location"
	PostKindContact   PostKind = "contact"
	PostKindSticker   PostKind = "sticker"
	PostKindCopy      PostKind = "copy"
	PostKindForward   PostKind = "forward"
)

// String returns the string representation of the kind
func (k PostKind) String() string {
	return string(k)
}

// Valid checks if the kind is valid
func (k PostKind) Valid() bool {
	switch k {
	case PostKindStandard, PostKindStory, PostKindPaidMedia, PostKindPoll,
		PostKindDocument, PostKindAudio, PostKindVoice, PostKindVideoNote,
		PostKindLocation, PostKindContact, PostKindSticker, PostKindCopy,
		PostKindForward:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for PostKind
func (k *PostKind) Scan(value any) error {
	if value == nil {
		*k = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*k = PostKind(v)
	case []byte:
		*k = PostKind(string(v))
	default:
		return fmt.Errorf("cannot scan %T into PostKind", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for PostKind
func (k PostKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid PostKind: %s", k)
	}
	return string(k), nil
}

// InlineButton is a single button of the inline keyboard grid attached to a post
type InlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// PostOptions holds per-post delivery flags shared by all kinds
type PostOptions struct {
	Silent            bool     `json:"disable_notification,omitempty"`
	ParseMode         string   `json:"parse_mode,omitempty"`
	ProtectContent    bool     `json:"protect_content,omitempty"`
	HasSpoiler        bool     `json:"has_spoiler,omitempty"`
	CaptionAboveMedia bool     `json:"show_caption_above_media,omitempty"`
	Pin               bool     `json:"pin,omitempty"`
	MessageEffectID   string   `json:"message_effect_id,omitempty"`
	Reactions         []string `json:"reactions,omitempty"`
}

// PostContent is the kind-dependent payload of a post template.
// Only the fields relevant to the post's kind are populated; the
// businessflow layer validates completeness before persistence.
type PostContent struct {
	// standard / media kinds
	Text  string   `json:"text,omitempty"`
	Media []string `json:"media,omitempty"` // ordered URLs

	// poll
	Question        string   `json:"question,omitempty"`
	PollOptions     []string `json:"poll_options,omitempty"`
	IsQuiz          bool     `json:"is_quiz,omitempty"`
	IsAnonymous     *bool    `json:"is_anonymous,omitempty"`
	CorrectOptionID *int     `json:"correct_option_id,omitempty"`

	// paid_media
	StarCount int `json:"star_count,omitempty"`

	// story
	ActivePeriod int `json:"active_period,omitempty"` // seconds

	// audio
	Performer string `json:"performer,omitempty"`
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`

	// location
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   string   `json:"address,omitempty"`

	// contact
	PhoneNumber string `json:"phone_number,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`

	// copy / forward
	FromChatID    string `json:"from_chat_id,omitempty"`
	FromMessageID int64  `json:"message_id,omitempty"`

	Buttons [][]InlineButton `json:"buttons,omitempty"`
	Options PostOptions      `json:"options"`
}

// Value implements the driver.Valuer interface for PostContent
func (c PostContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for PostContent
func (c *PostContent) Scan(value any) error {
	if value == nil {
		*c = PostContent{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into PostContent", value)
	}

	return json.Unmarshal(bytes, c)
}

// Post is the reusable content template scheduled to one or more channels
type Post struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID   `gorm:"type:uuid;not null;index:idx_posts_owner_id" json:"owner_id"`
	Kind      PostKind    `gorm:"type:post_kind;not null;default:'standard'" json:"kind"`
	Content   PostContent `gorm:"type:jsonb;not null" json:"content"`
	Name      string      `gorm:"type:varchar(255)" json:"name,omitempty"`
	CreatedAt time.Time   `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_posts_created_at" json:"created_at"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`

	// Relations
	Publications []Publication `gorm:"foreignKey:PostID;references:ID" json:"publications,omitempty"`
}

// TableName returns the table name for the model
func (Post) TableName() string {
	return "posts"
}

// BeforeCreate is called before creating a new record
func (p *Post) BeforeCreate() error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Kind == "" {
		p.Kind = PostKindStandard
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}
