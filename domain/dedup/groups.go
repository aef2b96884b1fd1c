package dedup

import (
	"sort"

	"github.com/quarry-ai/quarry/domain/chunks"
	"github.com/quarry-ai/quarry/pkg/mathutil"
)

// groupByHash buckets chunks by content hash and returns the buckets that
// actually contain duplicates.
func groupByHash(list []*chunks.TextChunk) [][]*chunks.TextChunk {
	buckets := map[string][]*chunks.TextChunk{}
	var order []string
	for _, c := range list {
		hash := c.ContentHash
		if hash == "" {
			hash = chunks.HashContent(c.Content)
		}
		if _, seen := buckets[hash]; !seen {
			order = append(order, hash)
		}
		buckets[hash] = append(buckets[hash], c)
	}

	var out [][]*chunks.TextChunk
	for _, hash := range order {
		if len(buckets[hash]) > 1 {
			out = append(out, buckets[hash])
		}
	}
	return out
}

// groupBySimilarity single-link clusters chunks whose embedding cosine
// similarity meets the threshold. Chunks without a vector stay unclustered.
// Only clusters with more than one member are returned.
func groupBySimilarity(list []*chunks.TextChunk, vectors map[string][]float32, threshold float32) [][]*chunks.TextChunk {
	var withVec []*chunks.TextChunk
	for _, c := range list {
		if _, ok := vectors[c.ID]; ok {
			withVec = append(withVec, c)
		}
	}
	if len(withVec) < 2 {
		return nil
	}

	parent := make([]int, len(withVec))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		parent[find(a)] = find(b)
	}

	for i := 0; i < len(withVec); i++ {
		for j := i + 1; j < len(withVec); j++ {
			sim := mathutil.CosineSimilarity(vectors[withVec[i].ID], vectors[withVec[j].ID])
			if sim >= threshold {
				union(i, j)
			}
		}
	}

	clusters := map[int][]*chunks.TextChunk{}
	var roots []int
	for i, c := range withVec {
		root := find(i)
		if _, seen := clusters[root]; !seen {
			roots = append(roots, root)
		}
		clusters[root] = append(clusters[root], c)
	}

	var out [][]*chunks.TextChunk
	for _, root := range roots {
		if len(clusters[root]) > 1 {
			out = append(out, clusters[root])
		}
	}
	return out
}

// representative picks the chunk to keep: smallest created_at, ties broken by
// smaller sequence number.
func representative(group []*chunks.TextChunk) *chunks.TextChunk {
	sorted := make([]*chunks.TextChunk, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].SequenceNumber < sorted[j].SequenceNumber
	})
	return sorted[0]
}
