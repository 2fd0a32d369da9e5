// Package chunker splits document text into overlapping chunks with stable
// identity keys. Chunking is deterministic: identical input always yields
// the same (ordinal, text, hash) sequence, so index upserts are true
// replacements rather than accidental duplicates.
package chunker

import (
	"strings"
	"unicode"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// Config controls chunk sizing. Sizes are in runes.
type Config struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultConfig provides sane defaults for markdown notes.
func DefaultConfig() Config {
	return Config{
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   200,
		MaxChunks: 64,
	}
}

// Split chunks a document's content. Ordinals are assigned by position;
// each chunk carries its own content hash.
func Split(doc domain.Document, cfg Config) []domain.Chunk {
	pieces := splitText(doc.Content, cfg)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			DocPath: doc.Path,
			Ordinal: i,
			Content: piece,
			Hash:    domain.HashText(piece),
		})
	}
	return chunks
}

func splitText(text string, cfg Config) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		// Prefer cutting at whitespace so chunks end on word boundaries.
		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 {
			if end-start > cfg.Overlap {
				nextStart = end - cfg.Overlap
			}
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
