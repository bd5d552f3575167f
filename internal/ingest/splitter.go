// Package ingest loads source documents, splits them into chunks, embeds
// the chunks, and writes them to the knowledge store and keyword index.
package ingest

import (
	"strings"
	"unicode/utf8"
)

// Piece is a span of the source text produced by a splitter.
// Start and End are byte offsets into the original text, so
// text[Start:End] == Content always holds.
type Piece struct {
	Content string
	Start   int
	End     int
}

// TextSplitter cuts a document into pieces bounded by a target size.
type TextSplitter interface {
	Split(text string) []Piece
}

// DefaultSeparators is the separator hierarchy for SeparatorSplitter:
// paragraph breaks first, then lines, then words, then a hard cut.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// span is an internal [start, end) byte range.
type span struct {
	start, end int
}

// SeparatorSplitter splits text recursively along a separator hierarchy,
// preferring paragraph boundaries and falling back to finer separators only
// when a segment exceeds the target size. Adjacent segments are merged back
// into chunks up to size bytes with overlap bytes carried between chunks.
type SeparatorSplitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSeparatorSplitter creates a splitter with the default separator
// hierarchy. size is the maximum chunk length in bytes; overlap is how many
// trailing bytes of one chunk reappear at the start of the next.
func NewSeparatorSplitter(size, overlap int) *SeparatorSplitter {
	if size < 1 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &SeparatorSplitter{
		size:       size,
		overlap:    overlap,
		separators: DefaultSeparators,
	}
}

// Split implements TextSplitter.
func (s *SeparatorSplitter) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := s.segment(text, 0, len(text), 0)
	return s.merge(text, units)
}

// segment recursively cuts text[start:end] into spans no longer than size.
func (s *SeparatorSplitter) segment(text string, start, end, sepIdx int) []span {
	if end-start <= s.size {
		return []span{{start, end}}
	}

	sep := s.separators[sepIdx]
	if sep == "" {
		return hardCut(text, start, end, s.size)
	}

	var spans []span
	segStart := start
	for segStart < end {
		idx := strings.Index(text[segStart:end], sep)
		var segEnd int
		if idx < 0 {
			segEnd = end
		} else {
			segEnd = segStart + idx
		}

		if segEnd > segStart {
			if segEnd-segStart <= s.size {
				spans = append(spans, span{segStart, segEnd})
			} else {
				spans = append(spans, s.segment(text, segStart, segEnd, sepIdx+1)...)
			}
		}

		if idx < 0 {
			break
		}
		segStart = segEnd + len(sep)
	}
	return spans
}

// hardCut slices text[start:end] into size-byte pieces at rune boundaries.
func hardCut(text string, start, end, size int) []span {
	var spans []span
	for start < end {
		cut := start + size
		if cut >= end {
			spans = append(spans, span{start, end})
			break
		}
		// Back off to a rune boundary
		for cut > start && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == start {
			cut = start + size // pathological input, cut anyway
		}
		spans = append(spans, span{start, cut})
		start = cut
	}
	return spans
}

// merge greedily packs consecutive units into chunks up to size bytes.
// The chunk content is the contiguous slice of the original text, so the
// separators between units are preserved. The next chunk starts at the
// earliest unit within overlap bytes of the current chunk's end.
func (s *SeparatorSplitter) merge(text string, units []span) []Piece {
	var pieces []Piece

	i := 0
	for i < len(units) {
		j := i
		end := units[i].end
		for j+1 < len(units) && units[j+1].end-units[i].start <= s.size {
			j++
			end = units[j].end
		}

		content := text[units[i].start:end]
		if strings.TrimSpace(content) != "" {
			pieces = append(pieces, Piece{
				Content: content,
				Start:   units[i].start,
				End:     end,
			})
		}

		if j+1 >= len(units) {
			break
		}

		next := j + 1
		for k := j; k > i; k-- {
			if end-units[k].start > s.overlap {
				break
			}
			next = k
		}
		i = next
	}

	return pieces
}

// FixedSplitter cuts text into fixed-size byte windows with overlap,
// ignoring structure. Useful for content without meaningful separators.
type FixedSplitter struct {
	size    int
	overlap int
}

// NewFixedSplitter creates a fixed-window splitter.
func NewFixedSplitter(size, overlap int) *FixedSplitter {
	if size < 1 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &FixedSplitter{size: size, overlap: overlap}
}

// Split implements TextSplitter.
func (f *FixedSplitter) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var pieces []Piece
	step := f.size - f.overlap
	for start := 0; start < len(text); start += step {
		end := start + f.size
		if end > len(text) {
			end = len(text)
		}
		// Align both edges to rune boundaries
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end--
		}
		content := text[start:end]
		if strings.TrimSpace(content) != "" {
			pieces = append(pieces, Piece{Content: content, Start: start, End: end})
		}
		if end == len(text) {
			break
		}
		// Keep the next window's start on a rune boundary
		next := start + step
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		step = next - start
	}
	return pieces
}
