// Package extractor converts file bytes into plain text plus structural
// metadata. Plain-text formats are handled natively; pdf/docx/doc are
// delegated to the document parser service over HTTP.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

var Module = fx.Module("extractor",
	fx.Provide(NewExtractor),
)

// Result is the outcome of a successful extraction.
type Result struct {
	Text      string
	Metadata  map[string]any
	PageCount int
	WordCount int
}

// Options tune a single extraction call.
type Options struct {
	// Language hint for OCR-backed formats
	Language string
}

// Extractor routes files to the native or remote extraction path by type.
type Extractor struct {
	remote      *remoteClient
	maxFileSize int64
	log         *slog.Logger
}

// NewExtractor creates the extractor with the configured parser service.
func NewExtractor(cfg *config.Config, log *slog.Logger) *Extractor {
	return &Extractor{
		remote:      newRemoteClient(cfg.Extractor, log),
		maxFileSize: cfg.Extractor.MaxFileSize.Int64(),
		log:         log.With(logger.Scope("extractor")),
	}
}

// Extract produces text and metadata for the given bytes. Deterministic for
// byte-identical input: the same bytes and type always produce the same text.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileType string, opts Options) (*Result, error) {
	if e.maxFileSize > 0 && int64(len(data)) > e.maxFileSize {
		return nil, apperror.ErrFileTooLarge.WithDetails(map[string]any{
			"size_bytes": len(data),
			"max_bytes":  e.maxFileSize,
		})
	}

	ft := strings.ToLower(strings.TrimSpace(fileType))
	switch ft {
	case "txt", "md":
		return extractPlain(data), nil
	case "html":
		return extractHTML(data)
	case "pdf", "docx", "doc":
		return e.remote.extract(ctx, data, ft, opts)
	default:
		return nil, apperror.ErrUnsupportedFileType.WithMessage(
			fmt.Sprintf("file type %q is not supported", fileType))
	}
}

// extractPlain handles txt and md verbatim.
func extractPlain(data []byte) *Result {
	text := string(data)
	return &Result{
		Text:      text,
		Metadata:  map[string]any{},
		PageCount: 1,
		WordCount: countWords(text),
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
