// Package chunker splits file text into bounded, ordered chunks.
//
// Sizes are measured in characters (decoded runes; an invalid UTF-8 byte
// counts as one character and is preserved verbatim). Text is first split on
// the most preferred separator; oversized pieces are re-split on the next one,
// and pieces no separator can reduce are cut hard at the size limit. The pieces
// are then merged greedily. Only a hard cut carries overlap: the chunk that
// follows it starts with the last OverlapSize characters of the chunk before.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded fragment of a file.
type Chunk struct {
	SourceName string
	SourcePath string
	Index      int
	Text       string
	// Overlap is the number of leading characters of Text repeated from the
	// previous chunk. Zero for the first chunk and after separator boundaries.
	Overlap int
}

// Body returns Text without its overlap prefix.
func (c Chunk) Body() string {
	_, body := cut(c.Text, c.Overlap)
	return body
}

// Options configures a Chunker.
type Options struct {
	MaxChunkSize int
	OverlapSize  int
	Separators   []string
}

// Chunker is safe for concurrent use; Split is a pure function of its input.
type Chunker struct {
	max        int
	overlap    int
	separators []string
}

// ErrInvalidOptions is returned by New for unusable sizes or separators.
var ErrInvalidOptions = errors.New("invalid chunker options")

// New validates opts and returns a Chunker.
func New(opts Options) (*Chunker, error) {
	if opts.MaxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be positive, got %d", ErrInvalidOptions, opts.MaxChunkSize)
	}
	if opts.OverlapSize < 0 || opts.OverlapSize >= opts.MaxChunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidOptions, opts.OverlapSize, opts.MaxChunkSize)
	}
	for _, sep := range opts.Separators {
		if sep == "" {
			return nil, fmt.Errorf("%w: empty separator", ErrInvalidOptions)
		}
	}
	return &Chunker{
		max:        opts.MaxChunkSize,
		overlap:    opts.OverlapSize,
		separators: append([]string(nil), opts.Separators...),
	}, nil
}

// Split fragments text. Empty text yields no chunks; text within the size
// limit yields exactly one chunk equal to the input.
func (c *Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.max {
		return []Chunk{{Text: text}}
	}
	return c.merge(c.segment(text, 0, nil))
}

// SplitFile is Split with every chunk tagged with its source file.
func (c *Chunker) SplitFile(name, path, text string) []Chunk {
	chunks := c.Split(text)
	for i := range chunks {
		chunks[i].SourceName = name
		chunks[i].SourcePath = path
	}
	return chunks
}

// segment appends the pieces of s to out. Each separator stays attached to
// the piece it terminates, so concatenating the pieces yields s.
func (c *Chunker) segment(s string, sepIdx int, out []string) []string {
	if utf8.RuneCountInString(s) <= c.max || sepIdx >= len(c.separators) {
		return append(out, s)
	}

	parts := strings.SplitAfter(s, c.separators[sepIdx])
	if len(parts) == 1 {
		return c.segment(s, sepIdx+1, out)
	}
	for _, p := range parts {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= c.max {
			out = append(out, p)
			continue
		}
		out = c.segment(p, sepIdx+1, out)
	}
	return out
}

// merge packs pieces into chunks of at most max characters.
func (c *Chunker) merge(pieces []string) []Chunk {
	var (
		chunks  []Chunk
		cur     strings.Builder
		curLen  int
		overlap int // leading characters of cur carried from the previous chunk
	)

	emit := func() {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: cur.String(), Overlap: overlap})
	}
	reset := func(prefix string, n int) {
		cur.Reset()
		cur.WriteString(prefix)
		curLen = utf8.RuneCountInString(prefix)
		overlap = n
	}

	for _, p := range pieces {
		pLen := utf8.RuneCountInString(p)

		if curLen+pLen <= c.max {
			cur.WriteString(p)
			curLen += pLen
			continue
		}

		if pLen <= c.max {
			// Separator boundary. A buffer holding only carried overlap is
			// dropped since its text already ended the previous chunk.
			if curLen > overlap {
				emit()
			}
			reset(p, 0)
			continue
		}

		// Hard cut: fill to the limit, emit, and carry the tail forward.
		for pLen > 0 {
			room := c.max - curLen
			if pLen <= room {
				cur.WriteString(p)
				curLen += pLen
				break
			}
			head, rest := cut(p, room)
			cur.WriteString(head)
			curLen += room
			p, pLen = rest, pLen-room

			emit()
			tail := lastN(cur.String(), c.overlap)
			reset(tail, utf8.RuneCountInString(tail))
		}
	}

	if curLen > overlap {
		emit()
	}
	return chunks
}

// cut splits s after its first n characters.
func cut(s string, n int) (string, string) {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return s[:i], s[i:]
}

// lastN returns the final n characters of s.
func lastN(s string, n int) string {
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}
	return s[i:]
}
