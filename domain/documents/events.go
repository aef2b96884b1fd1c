package documents

import (
	"context"
	"log/slog"

	"github.com/quarry-ai/quarry/internal/eventbus"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// RegisterEventHandlers wires document status tracking onto the pipeline
// events: extraction marks the document processing, dedup completion marks it
// ready, a permanent stage failure marks it failed.
func RegisterEventHandlers(consumer *eventbus.Consumer, repo *Repository, log *slog.Logger) {
	l := log.With(logger.Scope("documents.events"))

	consumer.Subscribe(eventbus.TopicTextExtracted, func(ctx context.Context, env *eventbus.Envelope) error {
		var data eventbus.TextExtractedData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		return setStatus(ctx, repo, l, data.DocumentID, StatusProcessing)
	})

	consumer.Subscribe(eventbus.TopicChunksDeduplicated, func(ctx context.Context, env *eventbus.Envelope) error {
		var data eventbus.ChunksDeduplicatedData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		return setStatus(ctx, repo, l, data.DocumentID, StatusReady)
	})

	consumer.Subscribe(eventbus.TopicProcessingFailed, func(ctx context.Context, env *eventbus.Envelope) error {
		var data eventbus.ProcessingFailedData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		l.Warn("document processing failed",
			slog.String("document_id", data.DocumentID),
			slog.String("kind", data.Kind),
			slog.String("error_kind", data.ErrorKind))
		return setStatus(ctx, repo, l, data.DocumentID, StatusFailed)
	})
}

// setStatus updates the document status. A missing document is not a handler
// failure: the document may have been deleted while its events were in flight.
func setStatus(ctx context.Context, repo *Repository, log *slog.Logger, documentID string, status DocumentStatus) error {
	err := repo.UpdateStatus(ctx, documentID, status)
	if apperror.CodeOf(err) == apperror.CodeNotFound {
		log.Debug("status event for missing document", slog.String("document_id", documentID))
		return nil
	}
	if err == nil {
		log.Info("document status updated",
			slog.String("document_id", documentID),
			slog.String("status", string(status)))
	}
	return err
}
