package processor

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"

	"notebase.evalgo.org/common"
)

// PDFProcessor extracts text page by page. Pages that fail to parse are
// skipped so a single damaged page does not sink the whole document.
type PDFProcessor struct{}

func (p *PDFProcessor) Extract(ctx context.Context, data []byte) (text string, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", &ExtractionError{Reason: "content is not a PDF"}
	}

	defer func() {
		// The parser panics on some malformed files.
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Reason: "PDF parsing panicked"}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Reason: "unreadable PDF", Err: err}
	}

	var sb strings.Builder
	pages := reader.NumPage()
	extracted := 0
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			common.Logger.Warn("skipping unreadable PDF page ", i, ": ", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
		extracted++
	}

	if extracted == 0 {
		return "", &ExtractionError{Reason: "no extractable text in PDF"}
	}
	return sb.String(), nil
}
