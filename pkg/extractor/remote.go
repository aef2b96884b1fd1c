package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// remoteClient talks to the document parser service for formats that need a
// real parser (pdf, docx, doc).
type remoteClient struct {
	httpClient *http.Client
	baseURL    string
	enabled    bool
	log        *slog.Logger
}

func newRemoteClient(cfg config.ExtractorConfig, log *slog.Logger) *remoteClient {
	return &remoteClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.ServiceURL,
		enabled:    cfg.Enabled,
		log:        log.With(logger.Scope("extractor.remote")),
	}
}

// remoteResult is the parser service response body.
type remoteResult struct {
	Content  string `json:"content"`
	Metadata struct {
		PageCount *int   `json:"page_count,omitempty"`
		Title     string `json:"title,omitempty"`
		Author    string `json:"author,omitempty"`
	} `json:"metadata"`
}

var extractMimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"doc":  "application/msword",
}

func (c *remoteClient) extract(ctx context.Context, data []byte, fileType string, opts Options) (*Result, error) {
	if !c.enabled {
		return nil, apperror.ErrExternalService.WithMessage("document parser service is disabled")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "document."+fileType)
	if err != nil {
		return nil, apperror.NewInternal("build multipart request", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, apperror.NewInternal("build multipart request", err)
	}
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if err := writer.Close(); err != nil {
		return nil, apperror.NewInternal("build multipart request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return nil, apperror.NewInternal("build extraction request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", extractMimeTypes[fileType])

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperror.ErrTimeout.WithMessage("document parsing timed out").WithInternal(err)
		}
		return nil, apperror.NewExternal("document parser unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apperror.NewExternal("read parser response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, apperror.NewExternal(
			fmt.Sprintf("parser service returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		// A 4xx means this document can never be parsed; retrying won't help.
		return nil, apperror.ErrUnsupportedFileType.WithMessage(
			fmt.Sprintf("parser rejected the document (%d)", resp.StatusCode)).
			WithDetails(map[string]any{"response": truncate(string(respBody), 500)})
	}

	var parsed remoteResult
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperror.NewExternal("decode parser response", err)
	}

	c.log.Debug("document parsed",
		slog.String("file_type", fileType),
		slog.Int("bytes", len(data)),
		slog.Duration("latency", time.Since(start)),
	)

	metadata := map[string]any{}
	if parsed.Metadata.Title != "" {
		metadata["title"] = parsed.Metadata.Title
	}
	if parsed.Metadata.Author != "" {
		metadata["author"] = parsed.Metadata.Author
	}

	pageCount := 1
	if parsed.Metadata.PageCount != nil && *parsed.Metadata.PageCount > 0 {
		pageCount = *parsed.Metadata.PageCount
	}

	return &Result{
		Text:      parsed.Content,
		Metadata:  metadata,
		PageCount: pageCount,
		WordCount: countWords(parsed.Content),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
