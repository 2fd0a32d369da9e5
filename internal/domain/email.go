package domain

import (
	"fmt"
	"time"
)

// EmailMessage is a single message within a thread, already decoded to text.
type EmailMessage struct {
	ID      string
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
	Unread  bool
	Draft   bool
}

// EmailThread is an ordered conversation as returned by the mailbox.
type EmailThread struct {
	ID       string
	Subject  string
	Messages []EmailMessage
}

// LatestMessage returns the most recent message of the thread.
func (t *EmailThread) LatestMessage() *EmailMessage {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// Sender returns the author of the latest message.
func (t *EmailThread) Sender() string {
	if m := t.LatestMessage(); m != nil {
		return m.From
	}
	return ""
}

// ValidateEmailThread checks that a thread is processable.
func ValidateEmailThread(t *EmailThread) error {
	if t == nil {
		return fmt.Errorf("email thread cannot be nil")
	}
	if t.ID == "" {
		return fmt.Errorf("email thread ID is required")
	}
	if len(t.Messages) == 0 {
		return ErrThreadEmpty
	}
	return nil
}

// DraftResponse is a composed HTML reply plus ordered provenance footnotes.
// The zero value is not meaningful; use Abstain for the explicit abstention
// value, which is distinct from an empty body.
type DraftResponse struct {
	HTML      string
	Footnotes []string
	Abstained bool
}

// Abstain returns the explicit "cannot answer" response value.
func Abstain() DraftResponse {
	return DraftResponse{Abstained: true}
}

// IsAbstention reports whether the draft declines to answer.
func (d DraftResponse) IsAbstention() bool {
	return d.Abstained
}
