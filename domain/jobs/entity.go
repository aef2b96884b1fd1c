package jobs

import (
	"time"

	"github.com/uptrace/bun"
)

// JobKind is the pipeline stage a job executes.
type JobKind string

const (
	KindExtract      JobKind = "extract"
	KindChunk        JobKind = "chunk"
	KindEmbed        JobKind = "embed"
	KindDedup        JobKind = "dedup"
	KindIndex        JobKind = "index"
	KindFullPipeline JobKind = "full_pipeline"
)

// pipelineOrder is the stage sequence a full pipeline walks through.
var pipelineOrder = []JobKind{KindExtract, KindChunk, KindEmbed, KindDedup, KindIndex}

// NextStage returns the stage that follows kind in the pipeline, or "" when
// kind is the last stage or not part of the staged sequence.
func NextStage(kind JobKind) JobKind {
	for i, k := range pipelineOrder {
		if k == kind && i+1 < len(pipelineOrder) {
			return pipelineOrder[i+1]
		}
	}
	return ""
}

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// IsLive reports whether a job in this status still occupies the one
// non-terminal slot per (document, kind).
func (s JobStatus) IsLive() bool {
	return s == StatusPending || s == StatusProcessing
}

// IsTerminal reports whether this status is immutable. Failed jobs are
// terminal except for the retry transition back to pending.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether moving from one status to another is allowed:
//
//	pending    -> processing | cancelled
//	processing -> completed | failed | pending (requeue) | cancelled
//	failed     -> pending (retry)
//
// Completed and cancelled accept no transitions.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusPending || to == StatusCancelled
	case StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}

// JSON is a jsonb column holding job parameters or results.
type JSON map[string]any

// ProcessingJob is one unit of pipeline work, stored in kb.processing_jobs.
type ProcessingJob struct {
	bun.BaseModel `bun:"table:kb.processing_jobs,alias:pj"`

	ID         string     `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	DocumentID string     `bun:"document_id,notnull,type:uuid" json:"document_id"`
	UserID     string     `bun:"user_id,notnull" json:"user_id"`
	Kind       JobKind    `bun:"kind,notnull" json:"kind"`
	Status     JobStatus  `bun:"status,notnull,default:'pending'" json:"status"`
	Priority   int        `bun:"priority,notnull,default:0" json:"priority"`
	Parameters JSON       `bun:"parameters,type:jsonb" json:"parameters,omitempty"`
	Result     JSON       `bun:"result,type:jsonb" json:"result,omitempty"`
	RetryCount int        `bun:"retry_count,notnull,default:0" json:"retry_count"`
	MaxRetries int        `bun:"max_retries,notnull,default:3" json:"max_retries"`
	LastError  *string    `bun:"last_error" json:"last_error,omitempty"`
	ErrorCode  *string    `bun:"error_code" json:"error_code,omitempty"`
	WorkerID   *string    `bun:"worker_id" json:"-"`
	NotBefore  *time.Time `bun:"not_before" json:"not_before,omitempty"`

	CreatedAt   time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:now()" json:"updated_at"`
	StartedAt   *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
}

// String parameter helper; jsonb round trips values as any.
func (j JSON) String(key string) string {
	if j == nil {
		return ""
	}
	if s, ok := j[key].(string); ok {
		return s
	}
	return ""
}

// Int parameter helper. JSON numbers decode as float64.
func (j JSON) Int(key string) int {
	if j == nil {
		return 0
	}
	switch v := j[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
