package triage

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// Retriever returns ranked evidence chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Match, error)
}

// insufficientContextSentinel is what the model must emit when the supplied
// evidence cannot ground an answer. Its presence anywhere in the output is
// treated as an abstention.
const insufficientContextSentinel = "INSUFFICIENT_CONTEXT"

const composerSystemPrompt = `You draft replies to customer emails on behalf of the mailbox owner. Answer ONLY from the numbered evidence excerpts provided, addressing only the sender's explicit question. Do not use outside knowledge and do not speculate. If the evidence does not contain the answer, respond with exactly ` + insufficientContextSentinel + ` and nothing else. Write the reply as plain text paragraphs separated by blank lines, with no greeting and no signature.`

// Composer drafts HTML replies grounded in retrieved vault evidence. With
// no usable evidence it abstains instead of guessing.
type Composer struct {
	retriever Retriever
	gen       Generator
}

func NewComposer(retriever Retriever, gen Generator) *Composer {
	return &Composer{retriever: retriever, gen: gen}
}

// Compose builds a reply draft for the thread. The returned response is an
// explicit abstention when retrieval finds nothing or the model reports the
// evidence as insufficient.
func (c *Composer) Compose(ctx context.Context, thread domain.EmailThread) (domain.DraftResponse, error) {
	if err := domain.ValidateEmailThread(&thread); err != nil {
		return domain.DraftResponse{}, err
	}

	latest := thread.LatestMessage()
	query := strings.TrimSpace(thread.Subject + "\n" + latest.Body)

	matches, err := c.retriever.Retrieve(ctx, query)
	if err != nil {
		return domain.DraftResponse{}, fmt.Errorf("retrieve evidence for thread %s: %w", thread.ID, err)
	}
	if len(matches) == 0 {
		log.Printf("triage: thread %s: %v", thread.ID, domain.ErrInsufficientEvidence)
		return domain.Abstain(), nil
	}

	answer, err := c.gen.GenerateText(ctx, composerSystemPrompt, buildComposePrompt(thread, matches))
	if err != nil {
		return domain.DraftResponse{}, fmt.Errorf("compose reply for thread %s: %w", thread.ID, err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" || strings.Contains(answer, insufficientContextSentinel) {
		log.Printf("triage: thread %s: %v", thread.ID, domain.ErrInsufficientEvidence)
		return domain.Abstain(), nil
	}

	footnotes := collectFootnotes(matches)
	return domain.DraftResponse{
		HTML:      renderHTML(answer, footnotes),
		Footnotes: footnotes,
	}, nil
}

func buildComposePrompt(thread domain.EmailThread, matches []domain.Match) string {
	var b strings.Builder
	b.WriteString("Evidence excerpts:\n")
	for i, match := range matches {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, match.DocPath, match.Content)
	}

	fmt.Fprintf(&b, "Email thread, subject %q:\n", thread.Subject)
	for _, msg := range thread.Messages {
		fmt.Fprintf(&b, "\nFrom: %s\n%s\n", msg.From, msg.Body)
	}
	return b.String()
}

// collectFootnotes returns source URLs in evidence rank order, deduplicated.
func collectFootnotes(matches []domain.Match) []string {
	seen := make(map[string]struct{}, len(matches))
	footnotes := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.SourceURL == "" {
			continue
		}
		if _, dup := seen[match.SourceURL]; dup {
			continue
		}
		seen[match.SourceURL] = struct{}{}
		footnotes = append(footnotes, match.SourceURL)
	}
	return footnotes
}

// renderHTML turns the plain-text answer into paragraph markup and appends
// a numbered sources list.
func renderHTML(answer string, footnotes []string) string {
	var b strings.Builder
	b.WriteString("<div>\n")
	for _, para := range strings.Split(answer, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		escaped := html.EscapeString(para)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>")
		fmt.Fprintf(&b, "<p>%s</p>\n", escaped)
	}

	if len(footnotes) > 0 {
		b.WriteString("<hr>\n<p>Sources:</p>\n<ol>\n")
		for _, url := range footnotes {
			escaped := html.EscapeString(url)
			fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`+"\n", escaped, escaped)
		}
		b.WriteString("</ol>\n")
	}
	b.WriteString("</div>")
	return b.String()
}
