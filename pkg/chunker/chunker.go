// Package chunker splits plain text into ordered fragments with character
// offsets into the original text. Offsets are rune-based so that
// []rune(text)[start:end] recovers the fragment content exactly.
package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

// Kind selects the splitting policy.
type Kind string

const (
	KindFixedSize Kind = "fixed_size"
	KindParagraph Kind = "paragraph"
	KindSentence  Kind = "sentence"
	KindSemantic  Kind = "semantic"
)

// ParseKind validates a policy name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFixedSize, KindParagraph, KindSentence, KindSemantic:
		return k, nil
	default:
		return "", apperror.NewValidation(fmt.Sprintf("unknown chunk type %q", s))
	}
}

// Fragment is one chunk of the source text. Start and End are rune offsets.
type Fragment struct {
	Content  string
	Start    int
	End      int
	Metadata map[string]any
}

// Options tune a split. Zero fields take the package defaults.
type Options struct {
	ChunkSize    int
	Overlap      int
	MinChunkSize int
	MaxChunkSize int
}

// DefaultOptions returns the standard splitting parameters.
func DefaultOptions() Options {
	return Options{ChunkSize: 1000, Overlap: 200, MinChunkSize: 100, MaxChunkSize: 2000}
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = 100
	}
	if o.MinChunkSize > o.ChunkSize {
		o.MinChunkSize = o.ChunkSize
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = 2 * o.ChunkSize
	}
	return o
}

func (o Options) validate() error {
	if o.Overlap >= o.ChunkSize {
		return apperror.NewValidation(
			fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d", o.Overlap, o.ChunkSize))
	}
	if o.MaxChunkSize < o.ChunkSize {
		return apperror.NewValidation("max chunk size must be at least chunk size")
	}
	return nil
}

// span is a half-open rune interval into the source text.
type span struct {
	start, end int
}

// Split produces ordered fragments of text under the given policy. Whitespace
// at fragment edges is trimmed by moving the offsets inward, so the offset
// round trip always holds. An all-whitespace input yields no fragments.
func Split(text string, kind Kind, opts Options) ([]Fragment, error) {
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil, nil
	}

	var spans []span
	switch kind {
	case KindFixedSize:
		spans = splitFixed(runes, opts)
	case KindParagraph:
		spans = mergeShort(paragraphSpans(runes), runes, opts)
	case KindSentence:
		spans = mergeShort(sentenceSpans(runes), runes, opts)
	case KindSemantic:
		spans = splitSemantic(runes, opts)
	default:
		return nil, apperror.NewValidation(fmt.Sprintf("unknown chunk type %q", kind))
	}

	frags := make([]Fragment, 0, len(spans))
	for _, s := range spans {
		content := string(runes[s.start:s.end])
		frags = append(frags, Fragment{
			Content: content,
			Start:   s.start,
			End:     s.end,
			Metadata: map[string]any{
				"policy":     string(kind),
				"word_count": len(strings.Fields(content)),
			},
		})
	}

	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Start != frags[j].Start {
			return frags[i].Start < frags[j].Start
		}
		return frags[i].Content < frags[j].Content
	})
	return frags, nil
}

// splitFixed strides windows of ChunkSize runes, advancing by
// ChunkSize-Overlap. The last window is short rather than padded.
func splitFixed(runes []rune, opts Options) []span {
	stride := opts.ChunkSize - opts.Overlap
	var out []span
	for pos := 0; pos < len(runes); pos += stride {
		end := pos + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = appendSpan(out, runes, pos, end)
		if end == len(runes) {
			break
		}
	}
	return out
}

// paragraphSpans splits on blank-line boundaries (a newline, optional
// horizontal whitespace, another newline).
func paragraphSpans(runes []rune) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(runes) {
		if runes[i] == '\n' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\r') {
				j++
			}
			if j < len(runes) && runes[j] == '\n' {
				spans = appendSpan(spans, runes, start, i)
				for j < len(runes) && unicode.IsSpace(runes[j]) {
					j++
				}
				start = j
				i = j
				continue
			}
		}
		i++
	}
	return appendSpan(spans, runes, start, len(runes))
}

// mergeShort folds spans shorter than MinChunkSize into their successor, then
// enforces the MaxChunkSize cap.
func mergeShort(spans []span, runes []rune, opts Options) []span {
	var out []span
	i := 0
	for i < len(spans) {
		cur := spans[i]
		i++
		for cur.end-cur.start < opts.MinChunkSize && i < len(spans) &&
			spans[i].end-cur.start <= opts.MaxChunkSize {
			cur.end = spans[i].end
			i++
		}
		out = append(out, splitOversized(cur, runes, opts.MaxChunkSize)...)
	}
	return out
}

// splitSemantic packs adjacent paragraphs up to ChunkSize so related
// paragraphs stay together, then caps at MaxChunkSize on word boundaries.
func splitSemantic(runes []rune, opts Options) []span {
	paras := paragraphSpans(runes)
	var out []span
	i := 0
	for i < len(paras) {
		cur := paras[i]
		i++
		for i < len(paras) && paras[i].end-cur.start <= opts.ChunkSize {
			cur.end = paras[i].end
			i++
		}
		out = append(out, splitOversized(cur, runes, opts.MaxChunkSize)...)
	}
	return out
}

// splitOversized breaks a span longer than max at whitespace, falling back to
// a hard cut when a single word exceeds max.
func splitOversized(s span, runes []rune, max int) []span {
	if s.end-s.start <= max {
		return []span{s}
	}
	var out []span
	pos := s.start
	for pos < s.end {
		end := pos + max
		if end >= s.end {
			end = s.end
		} else {
			cut := end
			for cut > pos && !unicode.IsSpace(runes[cut]) {
				cut--
			}
			if cut > pos {
				end = cut
			}
		}
		out = appendSpan(out, runes, pos, end)
		pos = end
		for pos < s.end && unicode.IsSpace(runes[pos]) {
			pos++
		}
	}
	return out
}

// appendSpan trims whitespace off both edges and drops empty spans.
func appendSpan(spans []span, runes []rune, start, end int) []span {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if end > start {
		spans = append(spans, span{start, end})
	}
	return spans
}
