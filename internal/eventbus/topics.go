package eventbus

// Pipeline topics. Every stage transition publishes exactly one of these,
// keyed by document id so per-document ordering is preserved.
const (
	TopicDocumentUploaded    = "document.uploaded"
	TopicTextExtracted       = "text.extracted"
	TopicChunksCreated       = "chunks.created"
	TopicEmbeddingsGenerated = "embeddings.generated"
	TopicChunksDeduplicated  = "chunks.deduplicated"
	TopicProcessingFailed    = "processing.failed"
)

// DocumentUploadedData is the payload for TopicDocumentUploaded
type DocumentUploadedData struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	FilePath   string `json:"file_path"`
	FileType   string `json:"file_type"`
}

// TextExtractedData is the payload for TopicTextExtracted
type TextExtractedData struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	TextLength int    `json:"text_length"`
	PageCount  int    `json:"page_count"`
}

// ChunksCreatedData is the payload for TopicChunksCreated
type ChunksCreatedData struct {
	DocumentID string   `json:"document_id"`
	UserID     string   `json:"user_id"`
	ChunkCount int      `json:"chunk_count"`
	ChunkIDs   []string `json:"chunk_ids"`
}

// EmbeddingsGeneratedData is the payload for TopicEmbeddingsGenerated
type EmbeddingsGeneratedData struct {
	DocumentID     string   `json:"document_id"`
	UserID         string   `json:"user_id"`
	EmbeddingCount int      `json:"embedding_count"`
	EmbeddingIDs   []string `json:"embedding_ids"`
}

// ChunksDeduplicatedData is the payload for TopicChunksDeduplicated
type ChunksDeduplicatedData struct {
	DocumentID   string `json:"document_id"`
	RemovedCount int    `json:"removed_count"`
	GroupsCount  int    `json:"groups_count"`
}

// ProcessingFailedData is the payload for TopicProcessingFailed
type ProcessingFailedData struct {
	JobID        string `json:"job_id"`
	DocumentID   string `json:"document_id"`
	Kind         string `json:"kind"`
	ErrorKind    string `json:"error_kind"`
	ErrorMessage string `json:"error_message"`
}
