// Package gmail adapts the Gmail API to the mail.Mailbox interface.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

const (
	// defaultQuery restricts polling to inbox threads with unread mail.
	defaultQuery = "is:unread in:inbox"

	labelUnread = "UNREAD"
	labelDraft  = "DRAFT"
)

// Mailbox lists unread inbox threads and saves reply drafts for the
// authenticated user.
type Mailbox struct {
	svc   *gmailapi.Service
	query string
}

// NewMailbox creates a Mailbox over an existing token source.
func NewMailbox(ctx context.Context, ts oauth2.TokenSource) (*Mailbox, error) {
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Mailbox{svc: svc, query: defaultQuery}, nil
}

// NewMailboxFromDir creates a Mailbox from a credentials directory holding
// credentials.json (OAuth client) and token.json (a previously granted user
// token).
func NewMailboxFromDir(ctx context.Context, dir string) (*Mailbox, error) {
	ts, err := tokenSourceFromDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	return NewMailbox(ctx, ts)
}

func tokenSourceFromDir(ctx context.Context, dir string) (oauth2.TokenSource, error) {
	credentials, err := os.ReadFile(filepath.Join(dir, "credentials.json"))
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(credentials,
		gmailapi.GmailReadonlyScope, gmailapi.GmailComposeScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "token.json"))
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	return oauthCfg.TokenSource(ctx, &token), nil
}

// ListThreads returns inbox threads matching the unread query, each with its
// messages decoded to text in chronological order.
func (m *Mailbox) ListThreads(ctx context.Context) ([]domain.EmailThread, error) {
	listed, err := m.svc.Users.Threads.List("me").Q(m.query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make([]domain.EmailThread, 0, len(listed.Threads))
	for _, ref := range listed.Threads {
		full, err := m.svc.Users.Threads.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get thread %s: %w", ref.Id, err)
		}
		threads = append(threads, decodeThread(full))
	}
	return threads, nil
}

// SaveDraft creates a reply draft on the thread addressed to the latest
// sender. The body is sent as HTML.
func (m *Mailbox) SaveDraft(ctx context.Context, thread domain.EmailThread, draft domain.DraftResponse) error {
	latest := thread.LatestMessage()
	if latest == nil {
		return domain.ErrThreadEmpty
	}

	subject := thread.Subject
	if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "To: %s\r\n", latest.From)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(draft.HTML)

	_, err := m.svc.Users.Drafts.Create("me", &gmailapi.Draft{
		Message: &gmailapi.Message{
			ThreadId: thread.ID,
			Raw:      base64.URLEncoding.EncodeToString([]byte(msg.String())),
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("create draft on thread %s: %w", thread.ID, err)
	}
	return nil
}

func decodeThread(t *gmailapi.Thread) domain.EmailThread {
	thread := domain.EmailThread{ID: t.Id}
	for _, msg := range t.Messages {
		decoded := decodeMessage(msg)
		if thread.Subject == "" {
			thread.Subject = decoded.Subject
		}
		thread.Messages = append(thread.Messages, decoded)
	}
	return thread
}

func decodeMessage(msg *gmailapi.Message) domain.EmailMessage {
	out := domain.EmailMessage{
		ID:     msg.Id,
		Unread: hasLabel(msg.LabelIds, labelUnread),
		Draft:  hasLabel(msg.LabelIds, labelDraft),
		Date:   time.UnixMilli(msg.InternalDate),
	}

	if msg.Payload == nil {
		return out
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "from":
			out.From = header.Value
		case "to":
			out.To = header.Value
		case "subject":
			out.Subject = header.Value
		case "date":
			if parsed, err := mail.ParseDate(header.Value); err == nil {
				out.Date = parsed
			}
		}
	}

	out.Body = extractBody(msg.Payload)
	return out
}

// extractBody walks the MIME tree preferring text/plain over text/html.
func extractBody(part *gmailapi.MessagePart) string {
	if body := findPart(part, "text/plain"); body != "" {
		return body
	}
	return findPart(part, "text/html")
}

func findPart(part *gmailapi.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if body := findPart(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
