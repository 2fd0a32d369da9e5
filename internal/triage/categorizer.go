// Package triage classifies incoming threads against the configured
// taxonomy and composes evidence-grounded reply drafts.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// Generator runs a chat completion with a system and user prompt.
type Generator interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

const categorizerSystemPrompt = `You are an email triage assistant. Classify the email thread into zero or more of the allowed categories. Respond with ONLY a JSON array of category names, for example ["QUESTION"]. Never invent categories outside the allowed list.`

const defaultCategorizerRetries = 2

// Categorizer assigns taxonomy labels to email threads via an LLM and
// mechanically discards anything outside the configured set.
type Categorizer struct {
	gen        Generator
	taxonomy   domain.Taxonomy
	maxRetries uint64
}

func NewCategorizer(gen Generator, taxonomy domain.Taxonomy) *Categorizer {
	return &Categorizer{gen: gen, taxonomy: taxonomy, maxRetries: defaultCategorizerRetries}
}

// Categorize returns the taxonomy labels applying to the thread. A failed
// call after retries returns an empty set with ErrClassificationFailed;
// callers treat that as "no labels", not a pipeline abort.
func (c *Categorizer) Categorize(ctx context.Context, thread domain.EmailThread) ([]domain.CategoryLabel, error) {
	if err := domain.ValidateEmailThread(&thread); err != nil {
		return nil, err
	}

	user := c.buildPrompt(thread)

	var raw string
	op := func() error {
		var err error
		raw, err = c.gen.GenerateText(ctx, categorizerSystemPrompt, user)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return []domain.CategoryLabel{}, fmt.Errorf("%w: %v", domain.ErrClassificationFailed, err)
	}

	candidates, err := parseLabels(raw)
	if err != nil {
		return []domain.CategoryLabel{}, fmt.Errorf("%w: %v", domain.ErrClassificationFailed, err)
	}

	kept, violations := c.taxonomy.Filter(candidates)
	if len(violations) > 0 {
		log.Printf("triage: thread %s: %v, discarding %v", thread.ID, domain.ErrTaxonomyViolation, violations)
	}
	return kept, nil
}

func (c *Categorizer) buildPrompt(thread domain.EmailThread) string {
	var b strings.Builder
	b.WriteString("Allowed categories: ")
	for i, label := range c.taxonomy.Labels() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(label))
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Subject: %s\n", thread.Subject)
	for _, msg := range thread.Messages {
		fmt.Fprintf(&b, "\nFrom: %s\n%s\n", msg.From, msg.Body)
	}
	return b.String()
}

// parseLabels reads a JSON string array, tolerating a markdown code fence
// around it.
func parseLabels(raw string) ([]domain.CategoryLabel, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("parse classification %q: %w", raw, err)
	}

	labels := make([]domain.CategoryLabel, 0, len(names))
	for _, name := range names {
		labels = append(labels, domain.CategoryLabel(name))
	}
	return labels, nil
}
