package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"
)

// DOCXProcessor extracts text from the WordprocessingML parts of a .docx
// archive: the main document body plus headers and footers. Table cells are
// part of the same paragraph stream and come out in document order.
type DOCXProcessor struct{}

func (d *DOCXProcessor) Extract(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(data, []byte("PK")) {
		return "", &ExtractionError{Reason: "content is not a DOCX archive"}
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Reason: "unreadable DOCX archive", Err: err}
	}

	var sb strings.Builder
	found := false
	for _, file := range archive.File {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !isWordXMLPart(file.Name) {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			continue
		}
		part, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		text, err := wordPartText(part)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
			found = true
		}
	}

	if !found {
		return "", &ExtractionError{Reason: "no extractable text in DOCX"}
	}
	return sb.String(), nil
}

func isWordXMLPart(name string) bool {
	if name == "word/document.xml" {
		return true
	}
	if !strings.HasPrefix(name, "word/") || !strings.HasSuffix(name, ".xml") {
		return false
	}
	base := strings.TrimPrefix(name, "word/")
	return strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")
}

// wordPartText walks one XML part and joins runs into paragraphs. The w:p
// element closes a paragraph, w:t carries text, and w:tab/w:br contribute
// whitespace.
func wordPartText(part []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(part))

	var sb strings.Builder
	var inText bool
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
