package processor

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// defaultNullRatio is the fraction of NUL bytes above which content is
// treated as binary rather than text.
const defaultNullRatio = 0.1

var blankRuns = regexp.MustCompile(`\n{3,}`)

// TXTProcessor decodes plain text files. UTF-8 is tried first, then the
// common single-byte encodings seen in the wild. A zero NullRatio uses the
// default binary threshold.
type TXTProcessor struct {
	NullRatio float64
}

func (t *TXTProcessor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ExtractionError{Reason: "empty text file"}
	}
	limit := t.NullRatio
	if limit <= 0 {
		limit = defaultNullRatio
	}
	if looksBinary(data, limit) {
		return "", &ExtractionError{Reason: "content appears to be binary"}
	}

	text, ok := decodeText(data)
	if !ok {
		return "", &ExtractionError{Reason: "undecodable text encoding"}
	}

	text = normalizeText(text)
	if strings.TrimSpace(text) == "" {
		return "", &ExtractionError{Reason: "no extractable text"}
	}
	return text, nil
}

func looksBinary(data []byte, limit float64) bool {
	nulls := 0
	for _, b := range data {
		if b == 0 {
			nulls++
		}
	}
	return float64(nulls)/float64(len(data)) > limit
}

func decodeText(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), true
	}
	for _, cm := range []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252} {
		if decoded, err := cm.NewDecoder().Bytes(data); err == nil {
			return string(decoded), true
		}
	}
	return "", false
}

// normalizeText unifies line endings, strips control characters and
// collapses runs of blank lines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r == 0x7f {
			continue
		}
		sb.WriteRune(r)
	}

	return blankRuns.ReplaceAllString(sb.String(), "\n\n")
}
