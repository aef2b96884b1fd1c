package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

func TestNextStage(t *testing.T) {
	assert.Equal(t, KindChunk, NextStage(KindExtract))
	assert.Equal(t, KindEmbed, NextStage(KindChunk))
	assert.Equal(t, KindDedup, NextStage(KindEmbed))
	assert.Equal(t, KindIndex, NextStage(KindDedup))
	assert.Equal(t, JobKind(""), NextStage(KindIndex))
	assert.Equal(t, JobKind(""), NextStage(KindFullPipeline))
	assert.Equal(t, JobKind(""), NextStage(JobKind("bogus")))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestJobStatusClassification(t *testing.T) {
	assert.True(t, StatusPending.IsLive())
	assert.True(t, StatusProcessing.IsLive())
	assert.False(t, StatusFailed.IsLive())
	assert.False(t, StatusCompleted.IsLive())
	assert.False(t, StatusCancelled.IsLive())

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
}

func TestJSONHelpers(t *testing.T) {
	params := JSON{
		"chunk_type": "fixed_size",
		"chunk_size": float64(1000), // jsonb round trip
		"overlap":    200,
		"nested":     map[string]any{"a": 1},
	}

	assert.Equal(t, "fixed_size", params.String("chunk_type"))
	assert.Equal(t, "", params.String("missing"))
	assert.Equal(t, "", params.String("chunk_size"))

	assert.Equal(t, 1000, params.Int("chunk_size"))
	assert.Equal(t, 200, params.Int("overlap"))
	assert.Equal(t, 0, params.Int("missing"))
	assert.Equal(t, 0, params.Int("chunk_type"))

	var nilJSON JSON
	assert.Equal(t, "", nilJSON.String("anything"))
	assert.Equal(t, 0, nilJSON.Int("anything"))
}

func TestProcessingJobJSONRoundTrip(t *testing.T) {
	created := time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC)
	started := created.Add(2 * time.Second)
	notBefore := created.Add(time.Minute)
	lastErr := "provider timed out"
	errCode := string(apperror.CodeTimeout)
	worker := "worker-7f3a"

	job := &ProcessingJob{
		ID:         "5c9e7c55-0b39-4a86-9e41-2f6a3d9c0001",
		DocumentID: "5c9e7c55-0b39-4a86-9e41-2f6a3d9c0002",
		UserID:     "user-1",
		Kind:       KindEmbed,
		Status:     StatusFailed,
		Priority:   5,
		Parameters: JSON{"chunk_size": float64(512)},
		Result:     JSON{"embedding_count": float64(3)},
		RetryCount: 1,
		MaxRetries: 3,
		LastError:  &lastErr,
		ErrorCode:  &errCode,
		WorkerID:   &worker,
		NotBefore:  &notBefore,
		CreatedAt:  created,
		UpdatedAt:  started,
		StartedAt:  &started,
	}

	raw, err := json.Marshal(job)
	require.NoError(t, err)

	// Worker claims are coordination state, never part of the API shape.
	assert.NotContains(t, string(raw), "worker")

	var decoded ProcessingJob
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded.WorkerID)

	job.WorkerID = nil
	assert.Equal(t, job, &decoded)
}
