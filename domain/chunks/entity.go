package chunks

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// ChunkKind is the splitting policy that produced a chunk.
type ChunkKind string

const (
	KindParagraph ChunkKind = "paragraph"
	KindSentence  ChunkKind = "sentence"
	KindFixedSize ChunkKind = "fixed_size"
	KindSemantic  ChunkKind = "semantic"
)

// JSON is a jsonb column holding free-form metadata.
type JSON map[string]any

// TextChunk is one contiguous slice of a document's extracted text, stored in
// kb.text_chunks. Chunks are immutable once written except for setting
// embedding_id exactly once.
type TextChunk struct {
	bun.BaseModel `bun:"table:kb.text_chunks,alias:tc"`

	ID             string    `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	DocumentID     string    `bun:"document_id,notnull,type:uuid" json:"document_id"`
	UserID         string    `bun:"user_id,notnull" json:"user_id"`
	Content        string    `bun:"content,notnull" json:"content"`
	Kind           ChunkKind `bun:"kind,notnull" json:"kind"`
	SequenceNumber int       `bun:"sequence_number,notnull" json:"sequence_number"`
	StartOffset    int       `bun:"start_offset,notnull" json:"start_offset"`
	EndOffset      int       `bun:"end_offset,notnull" json:"end_offset"`
	ContentHash    string    `bun:"content_hash,notnull" json:"content_hash"`
	Metadata       JSON      `bun:"metadata,type:jsonb,default:'{}'" json:"metadata"`
	EmbeddingID    *string   `bun:"embedding_id,type:uuid" json:"embedding_id,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// NormalizeContent collapses all whitespace runs to single spaces so that
// formatting differences do not defeat duplicate detection.
func NormalizeContent(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HashContent returns the hex sha256 of the whitespace-normalised content.
func HashContent(s string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(s)))
	return hex.EncodeToString(sum[:])
}
