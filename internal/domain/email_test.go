package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmailThread_LatestMessage(t *testing.T) {
	thread := &EmailThread{
		ID: "t1",
		Messages: []EmailMessage{
			{ID: "m1", From: "alice@example.com"},
			{ID: "m2", From: "bob@example.com"},
		},
	}

	latest := thread.LatestMessage()
	assert.NotNil(t, latest)
	assert.Equal(t, "m2", latest.ID)
	assert.Equal(t, "bob@example.com", thread.Sender())
}

func TestEmailThread_LatestMessage_Empty(t *testing.T) {
	thread := &EmailThread{ID: "t1"}
	assert.Nil(t, thread.LatestMessage())
	assert.Equal(t, "", thread.Sender())
}

func TestValidateEmailThread(t *testing.T) {
	assert.Error(t, ValidateEmailThread(nil))
	assert.Error(t, ValidateEmailThread(&EmailThread{Messages: []EmailMessage{{ID: "m"}}}))
	assert.ErrorIs(t, ValidateEmailThread(&EmailThread{ID: "t1"}), ErrThreadEmpty)
	assert.NoError(t, ValidateEmailThread(&EmailThread{ID: "t1", Messages: []EmailMessage{{ID: "m"}}}))
}

func TestAbstain_IsDistinctFromEmptyDraft(t *testing.T) {
	abstention := Abstain()
	assert.True(t, abstention.IsAbstention())
	assert.Empty(t, abstention.Footnotes)

	empty := DraftResponse{}
	assert.False(t, empty.IsAbstention())
}
