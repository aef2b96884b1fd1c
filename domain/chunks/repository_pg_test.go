package chunks

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/quarry-ai/quarry/internal/migrate"
)

// testDB connects to the database named by TEST_DATABASE_URL and applies the
// migrations. Tests using it are skipped when the variable is unset.
func testDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	sqldb, err := sql.Open("pgx", dsn)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, migrate.Up(context.Background(), sqldb, log))

	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReplaceDocumentSurvivesRetry(t *testing.T) {
	db := testDB(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewRepository(db, log)
	ctx := context.Background()

	docID := uuid.NewString()
	userID := uuid.NewString()
	t.Cleanup(func() {
		_, _ = repo.DeleteByDocument(context.Background(), docID)
	})

	mkBatch := func(n int) []*TextChunk {
		batch := make([]*TextChunk, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, &TextChunk{
				DocumentID:     docID,
				UserID:         userID,
				Content:        fmt.Sprintf("chunk number %d", i),
				Kind:           KindFixedSize,
				SequenceNumber: i,
				StartOffset:    i * 10,
				EndOffset:      i*10 + 9,
			})
		}
		return batch
	}

	// A failed first attempt persisted only a prefix of the document.
	require.NoError(t, repo.SaveBatch(ctx, mkBatch(2)))

	// The retried stage rebuilds every chunk from sequence zero. A plain
	// insert would collide with the leftover rows on the unique
	// (document_id, sequence_number) index.
	full := mkBatch(4)
	require.NoError(t, repo.ReplaceDocument(ctx, docID, full))
	for _, c := range full {
		require.NotEmpty(t, c.ID)
	}

	count, err := repo.CountByDocument(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, 4, count)

	// A second retry over committed rows is equally safe.
	require.NoError(t, repo.ReplaceDocument(ctx, docID, mkBatch(4)))
	count, err = repo.CountByDocument(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, 4, count)

	listed, err := repo.ListByDocument(ctx, docID, 0, 0)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	for i, c := range listed {
		require.Equal(t, i, c.SequenceNumber)
	}
}
