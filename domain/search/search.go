package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/vectorindex"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/embeddings"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Mode selects the ranking signal.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
)

// Fusion weights for hybrid mode. A chunk found by only one branch scores 0
// on the other.
const (
	weightSemantic = 0.7
	weightKeyword  = 0.3
)

const (
	maxQueryLength = 1000
	maxLimit       = 100
	scrollPageSize = 256
)

// Request is a retrieval query.
type Request struct {
	UserID    string              `json:"user_id"`
	Query     string              `json:"query"`
	Mode      Mode                `json:"mode"`
	Limit     int                 `json:"limit"`
	Threshold float32             `json:"threshold"`
	Filters   *vectorindex.Filter `json:"filters,omitempty"`
}

// Result is one ranked chunk, served from the vector index payload.
type Result struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Score      float32        `json:"score"`
	Source     string         `json:"source,omitempty"`
	Page       int            `json:"page,omitempty"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Response is the retrieval outcome.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Mode    Mode     `json:"mode"`
	TookMS  int64    `json:"took_ms"`
}

// Service is the retrieval engine: dense-vector ranking, lexical ranking, or
// a weighted fusion of both.
type Service struct {
	embedder embeddings.Client
	index    *vectorindex.Index
	cfg      *config.Config
	log      *slog.Logger
}

// NewService creates a new search service
func NewService(embedder embeddings.Client, index *vectorindex.Index, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		log:      log.With(logger.Scope("search.service")),
	}
}

// Search validates and runs a retrieval query.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	start := time.Now()
	filter := s.scopedFilter(req)

	var (
		results []Result
		err     error
	)
	switch req.Mode {
	case ModeSemantic:
		results, err = s.searchSemantic(ctx, req, filter, req.Threshold)
	case ModeKeyword:
		results, err = s.searchKeyword(ctx, req.Query, filter)
	case ModeHybrid:
		results, err = s.searchHybrid(ctx, req, filter)
	}
	if err != nil {
		return nil, err
	}

	results = postProcess(results, req.Threshold, req.Limit)

	took := time.Since(start)
	s.log.Info("search completed",
		slog.String("mode", string(req.Mode)),
		slog.Int("results", len(results)),
		slog.Duration("took", took))

	return &Response{
		Results: results,
		Total:   len(results),
		Mode:    req.Mode,
		TookMS:  took.Milliseconds(),
	}, nil
}

// validate normalises the request in place and rejects out-of-range values.
func validate(req *Request) error {
	if req.Query == "" {
		return apperror.NewValidation("query must not be empty")
	}
	if len(req.Query) > maxQueryLength {
		return apperror.NewValidation(fmt.Sprintf("query exceeds %d characters", maxQueryLength))
	}
	if req.Limit < 1 || req.Limit > maxLimit {
		return apperror.NewValidation(fmt.Sprintf("limit must be in [1, %d]", maxLimit))
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return apperror.NewValidation("threshold must be in [0, 1]")
	}

	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	switch req.Mode {
	case ModeSemantic, ModeKeyword, ModeHybrid:
		return nil
	default:
		return apperror.NewValidation(fmt.Sprintf("unknown search mode %q", req.Mode))
	}
}

// scopedFilter copies the request filter and adds the user scope.
func (s *Service) scopedFilter(req Request) *vectorindex.Filter {
	filter := &vectorindex.Filter{}
	if req.Filters != nil {
		filter.Must = append(filter.Must, req.Filters.Must...)
	}
	if req.UserID != "" {
		filter.Eq("user_id", req.UserID)
	}
	return filter
}

// searchSemantic embeds the query with the corpus model and ranks by cosine
// similarity.
func (s *Service) searchSemantic(ctx context.Context, req Request, filter *vectorindex.Filter, threshold float32) ([]Result, error) {
	vector, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Search(ctx, vector, req.Limit, threshold, filter)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		out = append(out, resultFromPayload(hit.Point, hit.Score))
	}
	return out, nil
}

// searchKeyword scans the index payloads and scores each candidate by lexical
// token frequency.
func (s *Service) searchKeyword(ctx context.Context, query string, filter *vectorindex.Filter) ([]Result, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var out []Result
	var cursor *uuid.UUID
	for {
		page, err := s.index.Scroll(ctx, filter, scrollPageSize, cursor)
		if err != nil {
			return nil, err
		}
		for _, point := range page.Points {
			score := keywordScore(tokens, point.Payload.Content)
			if score > 0 {
				out = append(out, resultFromPayload(point, score))
			}
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}

// searchHybrid fuses the two signals. The semantic branch runs with a zero
// threshold so fusion sees the full candidate set; the request threshold is
// applied after fusion.
func (s *Service) searchHybrid(ctx context.Context, req Request, filter *vectorindex.Filter) ([]Result, error) {
	semantic, err := s.searchSemantic(ctx, req, filter, 0)
	if err != nil {
		return nil, err
	}
	keyword, err := s.searchKeyword(ctx, req.Query, filter)
	if err != nil {
		return nil, err
	}
	return fuse(semantic, keyword), nil
}

// fuse combines per-branch scores into weightSemantic*sem + weightKeyword*kw.
func fuse(semantic, keyword []Result) []Result {
	merged := make(map[string]Result, len(semantic)+len(keyword))

	for _, r := range semantic {
		r.Score = weightSemantic * r.Score
		merged[r.ChunkID] = r
	}
	for _, r := range keyword {
		if existing, ok := merged[r.ChunkID]; ok {
			existing.Score += weightKeyword * r.Score
			merged[existing.ChunkID] = existing
			continue
		}
		r.Score = weightKeyword * r.Score
		merged[r.ChunkID] = r
	}

	out := make([]Result, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out
}

// postProcess applies the threshold, orders by descending score, keeps the
// best chunk per document and truncates to limit. Ties break on chunk id so
// identical inputs yield identical output.
func postProcess(results []Result, threshold float32, limit int) []Result {
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].ChunkID < kept[j].ChunkID
	})

	seen := make(map[string]struct{}, len(kept))
	out := make([]Result, 0, limit)
	for _, r := range kept {
		if _, dup := seen[r.DocumentID]; dup {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

func resultFromPayload(p vectorindex.Point, score float32) Result {
	return Result{
		ChunkID:    p.Payload.ChunkID,
		DocumentID: p.Payload.DocumentID,
		Content:    p.Payload.Content,
		Score:      score,
		Source:     p.Payload.Source,
		Page:       p.Payload.Page,
		ChunkIndex: p.Payload.ChunkIndex,
		Metadata:   p.Payload.UserMetadata,
	}
}
