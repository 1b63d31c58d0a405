package embed

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// defaultSeparators are tried in order; paragraph breaks first, then lines,
// then words, then a hard character split as the last resort.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// TextChunk is one split of a longer text.
type TextChunk struct {
	Text   string
	Index  int
	Tokens int
}

// Chunker splits text recursively on natural boundaries with a character
// size target and overlap between neighboring chunks.
type Chunker struct {
	chunkSize int
	overlap   int
	encoder   *tiktoken.Tiktoken
}

// NewChunker builds a chunker. Token counts use the cl100k_base encoding,
// matching the embedding models in use; when the encoding is unavailable
// (offline builds) chunks carry a zero token count.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap, encoder: encoder}
}

// Split breaks text into overlapping chunks. Whitespace-only input yields no
// chunks. Indexes are sequential from zero.
func (c *Chunker) Split(text string) []TextChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	parts := c.split(text, defaultSeparators)

	chunks := make([]TextChunk, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, TextChunk{
			Text:   part,
			Index:  len(chunks),
			Tokens: c.countTokens(part),
		})
	}
	return chunks
}

func (c *Chunker) countTokens(text string) int {
	if c.encoder == nil {
		return 0
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// split recursively divides text on the first separator that appears in it,
// merging the resulting pieces back up to the chunk size.
func (c *Chunker) split(text string, separators []string) []string {
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	separator := separators[len(separators)-1]
	rest := separators
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var splits []string
	if separator == "" {
		splits = hardSplit(text, c.chunkSize)
	} else {
		splits = strings.Split(text, separator)
	}

	var out []string
	var pending []string
	for _, s := range splits {
		if len(s) <= c.chunkSize {
			pending = append(pending, s)
			continue
		}
		// Oversized piece: flush what we have, then recurse with finer
		// separators.
		out = append(out, c.merge(pending, separator)...)
		pending = nil
		out = append(out, c.split(s, rest)...)
	}
	out = append(out, c.merge(pending, separator)...)
	return out
}

// merge joins small splits into chunks near the target size, carrying the
// configured overlap from the tail of one chunk into the head of the next.
func (c *Chunker) merge(splits []string, separator string) []string {
	if len(splits) == 0 {
		return nil
	}

	var out []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.TrimSpace(strings.Join(current, separator))
		if joined != "" {
			out = append(out, joined)
		}

		// Keep trailing splits within the overlap window for the next chunk.
		for currentLen > c.overlap && len(current) > 0 {
			currentLen -= len(current[0]) + len(separator)
			current = current[1:]
		}
	}

	for _, s := range splits {
		addition := len(s)
		if len(current) > 0 {
			addition += len(separator)
		}
		if currentLen+addition > c.chunkSize && len(current) > 0 {
			flush()
		}
		current = append(current, s)
		currentLen += addition
	}
	flush()

	return out
}

func hardSplit(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
