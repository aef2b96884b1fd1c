package documents

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

func TestFileTypeOf(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"report.pdf", "pdf"},
		{"notes.TXT", "txt"},
		{"page.htm", "html"},
		{"page.html", "html"},
		{"readme.markdown", "md"},
		{"readme.md", "md"},
		{"archive.tar.gz", "gz"},
		{"noextension", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileTypeOf(tt.filename), tt.filename)
	}
}

func testUploadService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Extractor.AllowedFileTypes = []string{"pdf", "txt", "md", "html"}
	cfg.Extractor.MaxFileSize = config.ByteSize(1 << 20)
	cfg.Extractor.DataDir = t.TempDir()
	return NewService(nil, nil, nil, nil, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUploadValidation(t *testing.T) {
	svc := testUploadService(t)
	ctx := context.Background()
	userID := "7b0d2a1e-9c64-4a1f-8f32-0f2e6f1c9b11"

	t.Run("bad user id", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadOptions{UserID: "nope", Filename: "a.txt"})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	})

	t.Run("missing filename", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadOptions{UserID: userID, Filename: "   "})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	})

	t.Run("disallowed type", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadOptions{UserID: userID, Filename: "shady.exe"})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeUnsupportedFileType, apperror.CodeOf(err))
	})

	t.Run("declared size too large", func(t *testing.T) {
		_, err := svc.Upload(ctx, UploadOptions{
			UserID:   userID,
			Filename: "big.txt",
			Size:     2 << 20,
			Content:  strings.NewReader("small body"),
		})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeFileTooLarge, apperror.CodeOf(err))
	})
}
