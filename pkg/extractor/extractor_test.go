package extractor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

func newTestExtractor(t *testing.T, serviceURL string, maxFileSize int64) *Extractor {
	t.Helper()
	cfg := config.ExtractorConfig{
		ServiceURL: serviceURL,
		Enabled:    serviceURL != "",
		Timeout:    5 * time.Second,
	}
	return &Extractor{
		remote:      newRemoteClient(cfg, slog.Default()),
		maxFileSize: maxFileSize,
		log:         slog.Default(),
	}
}

func TestExtractPlainText(t *testing.T) {
	e := newTestExtractor(t, "", 0)

	res, err := e.Extract(context.Background(), []byte("hello world\nsecond line"), "txt", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", res.Text)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, 4, res.WordCount)
}

func TestExtractMarkdownIsVerbatim(t *testing.T) {
	e := newTestExtractor(t, "", 0)

	src := "# Title\n\nSome *markdown* content."
	res, err := e.Extract(context.Background(), []byte(src), "md", Options{})
	require.NoError(t, err)
	assert.Equal(t, src, res.Text)
}

func TestExtractHTML(t *testing.T) {
	e := newTestExtractor(t, "", 0)

	html := `<html><head><title>Doc Title</title><style>p{color:red}</style></head>
<body><script>alert(1)</script><h1>Heading</h1><p>First paragraph.</p><p>Second   paragraph.</p></body></html>`

	res, err := e.Extract(context.Background(), []byte(html), "html", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Heading\n\nFirst paragraph.\n\nSecond paragraph.", res.Text)
	assert.Equal(t, "Doc Title", res.Metadata["title"])
	assert.NotContains(t, res.Text, "alert")
	assert.NotContains(t, res.Text, "color:red")
}

func TestExtractHTMLWithoutBlocks(t *testing.T) {
	e := newTestExtractor(t, "", 0)

	res, err := e.Extract(context.Background(), []byte("<html><body>bare  text</body></html>"), "html", Options{})
	require.NoError(t, err)
	assert.Equal(t, "bare text", res.Text)
}

func TestExtractUnsupportedType(t *testing.T) {
	e := newTestExtractor(t, "", 0)

	_, err := e.Extract(context.Background(), []byte("x"), "exe", Options{})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeUnsupportedFileType, apperror.CodeOf(err))
	assert.False(t, apperror.Retryable(err))
}

func TestExtractSizeLimit(t *testing.T) {
	e := newTestExtractor(t, "", 10)

	t.Run("exactly at the limit passes", func(t *testing.T) {
		_, err := e.Extract(context.Background(), []byte("1234567890"), "txt", Options{})
		assert.NoError(t, err)
	})

	t.Run("one byte over is rejected", func(t *testing.T) {
		_, err := e.Extract(context.Background(), []byte("12345678901"), "txt", Options{})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeFileTooLarge, apperror.CodeOf(err))
		assert.False(t, apperror.Retryable(err))
	})
}

func TestRemoteExtract(t *testing.T) {
	t.Run("successful parse", func(t *testing.T) {
		page := 3
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/extract", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1 << 20))
			_, _, err := r.FormFile("file")
			require.NoError(t, err)

			json.NewEncoder(w).Encode(remoteResult{
				Content: "parsed pdf body",
				Metadata: struct {
					PageCount *int   `json:"page_count,omitempty"`
					Title     string `json:"title,omitempty"`
					Author    string `json:"author,omitempty"`
				}{PageCount: &page, Title: "Report"},
			})
		}))
		defer srv.Close()

		e := newTestExtractor(t, srv.URL, 0)
		res, err := e.Extract(context.Background(), []byte("%PDF-1.4"), "pdf", Options{})
		require.NoError(t, err)
		assert.Equal(t, "parsed pdf body", res.Text)
		assert.Equal(t, 3, res.PageCount)
		assert.Equal(t, "Report", res.Metadata["title"])
		assert.Equal(t, 3, res.WordCount)
	})

	t.Run("server error is retryable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		e := newTestExtractor(t, srv.URL, 0)
		_, err := e.Extract(context.Background(), []byte("%PDF-1.4"), "pdf", Options{})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeExternalService, apperror.CodeOf(err))
		assert.True(t, apperror.Retryable(err))
	})

	t.Run("client error is terminal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "cannot parse", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		e := newTestExtractor(t, srv.URL, 0)
		_, err := e.Extract(context.Background(), []byte("not a pdf"), "pdf", Options{})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeUnsupportedFileType, apperror.CodeOf(err))
		assert.False(t, apperror.Retryable(err))
	})

	t.Run("unreachable service is retryable", func(t *testing.T) {
		e := newTestExtractor(t, "http://127.0.0.1:1", 0)
		_, err := e.Extract(context.Background(), []byte("%PDF-1.4"), "pdf", Options{})
		require.Error(t, err)
		assert.Equal(t, apperror.CodeExternalService, apperror.CodeOf(err))
		assert.True(t, apperror.Retryable(err))
	})
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, countWords(""))
	assert.Equal(t, 0, countWords("   \n\t"))
	assert.Equal(t, 3, countWords("  one\ttwo\nthree "))
}
