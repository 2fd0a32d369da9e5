package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ChangeType tags a filesystem notification affecting the vault.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// Change is a single vault change notification. Notifications are hints:
// they may arrive unordered or duplicated, and a full resync remains the
// source of truth.
type Change struct {
	Type    ChangeType
	Path    string
	OldPath string // set for renames only
}

func (c Change) String() string {
	if c.Type == ChangeRenamed {
		return fmt.Sprintf("%s %s -> %s", c.Type, c.OldPath, c.Path)
	}
	return fmt.Sprintf("%s %s", c.Type, c.Path)
}

// Document is a source text unit identified by its vault-relative path.
// Documents are ephemeral: recomputed from the file tree on each pass and
// never persisted outside the vector index.
type Document struct {
	Path      string
	Content   string
	Hash      string
	SourceURL string
	ModTime   time.Time
}

// Chunk is a contiguous slice of a document's text. Its identity key is
// (document path, ordinal); re-chunking unchanged content must reproduce
// identical keys and hashes.
type Chunk struct {
	DocPath string
	Ordinal int
	Content string
	Hash    string
}

// Key returns the stable identity key of the chunk.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s#%d", c.DocPath, c.Ordinal)
}

// VectorRecord is the unit stored in the vector index: one embedding plus
// provenance payload per chunk. At most one record exists per chunk key.
type VectorRecord struct {
	DocPath   string
	Ordinal   int
	Content   string
	Hash      string
	DocHash   string
	SourceURL string
	Embedding []float32
}

// Match is a single nearest-neighbor query result with provenance.
type Match struct {
	DocPath   string
	Ordinal   int
	Content   string
	SourceURL string
	Score     float64
}

// HashText returns the canonical content hash used for documents and chunks.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var (
	frontmatterSourceRe = regexp.MustCompile(`(?m)^(?:source|url):\s*(\S+)\s*$`)
	inlineURLRe         = regexp.MustCompile(`https?://[^\s)\]>"']+`)
)

// ExtractSourceURL derives the human-readable provenance anchor for a
// document: a frontmatter source/url key wins, then the first URL in the
// body, then a synthesized obsidian open link for the path.
func ExtractSourceURL(path, content string) string {
	if strings.HasPrefix(content, "---") {
		if end := strings.Index(content[3:], "---"); end >= 0 {
			if m := frontmatterSourceRe.FindStringSubmatch(content[:end+3]); m != nil {
				return strings.Trim(m[1], `"'`)
			}
		}
	}
	if m := inlineURLRe.FindString(content); m != "" {
		return strings.TrimRight(m, ".,;:")
	}
	return "obsidian://open?path=" + url.QueryEscape(path)
}

// NewDocument builds a Document from raw file content.
func NewDocument(path, content string, modTime time.Time) Document {
	return Document{
		Path:      path,
		Content:   content,
		Hash:      HashText(content),
		SourceURL: ExtractSourceURL(path, content),
		ModTime:   modTime,
	}
}
