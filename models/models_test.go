package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	topic := int64(77)
	linked := int64(-100999)

	t.Run("PlainChannel", func(t *testing.T) {
		c := &Channel{ID: -100500}
		assert.Equal(t, int64(-100500), c.ResolveTarget(nil))
	})

	t.Run("ForumReceivesTopicMessagesItself", func(t *testing.T) {
		c := &Channel{ID: -100500, IsForum: true, LinkedChatID: &linked}
		assert.Equal(t, int64(-100500), c.ResolveTarget(&topic))
	})

	t.Run("TopicGoesToLinkedDiscussionGroup", func(t *testing.T) {
		c := &Channel{ID: -100500, LinkedChatID: &linked}
		assert.Equal(t, linked, c.ResolveTarget(&topic))
	})

	t.Run("TopicWithoutLinkedChatFallsBackToChannel", func(t *testing.T) {
		c := &Channel{ID: -100500}
		assert.Equal(t, int64(-100500), c.ResolveTarget(&topic))
	})
}

func TestPostKindValid(t *testing.T) {
	for _, kind := range []PostKind{
		PostKindStandard, PostKindStory, PostKindPaidMedia, PostKindPoll,
		PostKindDocument, PostKindAudio, PostKindVoice, PostKindVideoNote,
		PostKindLocation, PostKindContact, PostKindSticker, PostKindCopy,
		PostKindForward,
	} {
		assert.True(t, kind.Valid(), kind.String())
	}
	assert.False(t, PostKind("gif").Valid())
	assert.False(t, PostKind("").Valid())
}

func TestPublicationStatusTerminal(t *testing.T) {
	assert.False(t, PublicationStatusScheduled.Terminal())
	assert.False(t, PublicationStatusPublished.Terminal())
	assert.True(t, PublicationStatusFailed.Terminal())
	assert.True(t, PublicationStatusDeleted.Terminal())
}

func TestQueueRefIsZero(t *testing.T) {
	assert.True(t, QueueRef{}.IsZero())
	assert.True(t, QueueRef{Queue: "publishing"}.IsZero())
	assert.False(t, QueueRef{Queue: "publishing", JobID: "abc"}.IsZero())
}

func TestPostContentScanRejectsUnexpectedType(t *testing.T) {
	var c PostContent
	require.Error(t, c.Scan(42))

	require.NoError(t, c.Scan([]byte(`{"text":"hi"}`)))
	assert.Equal(t, "hi", c.Text)

	require.NoError(t, c.Scan(nil))
	assert.Empty(t, c.Text)
}
