package domain

import "strings"

// CategoryLabel is a member of the closed, externally configured taxonomy.
type CategoryLabel string

// CategoryQuestion gates response composition: only threads carrying this
// label are answered.
const CategoryQuestion CategoryLabel = "QUESTION"

// Taxonomy is the closed label set supplied at configuration time.
// Classification output is filtered against it so out-of-set labels are
// mechanically detectable.
type Taxonomy struct {
	labels []CategoryLabel
	set    map[CategoryLabel]struct{}
}

// NewTaxonomy builds a taxonomy from raw label names. Labels are
// upper-cased and deduplicated; empty entries are dropped.
func NewTaxonomy(labels []string) Taxonomy {
	t := Taxonomy{set: make(map[CategoryLabel]struct{}, len(labels))}
	for _, raw := range labels {
		label := CategoryLabel(strings.ToUpper(strings.TrimSpace(raw)))
		if label == "" {
			continue
		}
		if _, ok := t.set[label]; ok {
			continue
		}
		t.set[label] = struct{}{}
		t.labels = append(t.labels, label)
	}
	return t
}

// Labels returns the taxonomy members in configuration order.
func (t Taxonomy) Labels() []CategoryLabel {
	out := make([]CategoryLabel, len(t.labels))
	copy(out, t.labels)
	return out
}

// Contains reports taxonomy membership.
func (t Taxonomy) Contains(label CategoryLabel) bool {
	_, ok := t.set[CategoryLabel(strings.ToUpper(strings.TrimSpace(string(label))))]
	return ok
}

// Filter splits candidate labels into taxonomy members and violations.
// Members keep candidate order and are deduplicated.
func (t Taxonomy) Filter(candidates []CategoryLabel) (kept, violations []CategoryLabel) {
	seen := make(map[CategoryLabel]struct{}, len(candidates))
	for _, raw := range candidates {
		label := CategoryLabel(strings.ToUpper(strings.TrimSpace(string(raw))))
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		if _, ok := t.set[label]; ok {
			kept = append(kept, label)
		} else {
			violations = append(violations, label)
		}
	}
	return kept, violations
}

// Size returns the number of labels in the taxonomy.
func (t Taxonomy) Size() int {
	return len(t.labels)
}
