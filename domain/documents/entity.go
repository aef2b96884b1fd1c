package documents

import (
	"time"

	"github.com/uptrace/bun"
)

// DocumentStatus tracks a document through the ingest pipeline.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an ingested file, stored in kb.documents. The extracted text
// lives in chunks and job results, not here.
type Document struct {
	bun.BaseModel `bun:"table:kb.documents,alias:d"`

	ID          string         `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	UserID      string         `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Filename    string         `bun:"filename,notnull" json:"filename"`
	FileType    string         `bun:"file_type,notnull" json:"file_type"`
	FileSize    int64          `bun:"file_size,notnull" json:"file_size"`
	StoragePath string         `bun:"storage_path,notnull" json:"-"`
	Status      DocumentStatus `bun:"status,notnull,default:'uploaded'" json:"status"`
	CreatedAt   time.Time      `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}
