package extract

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ErrUnsupported is returned when the file extension has no registered
// extractor.
var ErrUnsupported = errors.New("unsupported file type")

// Extractor converts uploaded document files into plain text.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its plain-text content.
// The extractor is picked by file extension.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return e.extractPDF(path)
	case ".docx":
		return e.extractDOCX(path)
	case ".txt":
		return e.extractText(path)
	case ".md":
		return e.extractMarkdown(path)
	case ".xlsx":
		return e.extractXLSX(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

func (e *Extractor) extractPDF(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf file failed: %w", err)
	}
	if len(b) == 0 {
		return "", nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	plainReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	return string(out), nil
}

func (e *Extractor) extractDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx failed: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var sb strings.Builder
	for _, line := range strings.Split(stripTags(content), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sb.WriteString(trimmed)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func (e *Extractor) extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file failed: %w", err)
	}
	return string(data), nil
}

// extractMarkdown renders the markdown to HTML and strips the tags, so
// formatting markers do not leak into chunks or embeddings.
func (e *Extractor) extractMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read markdown file failed: %w", err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return "", fmt.Errorf("convert markdown failed: %w", err)
	}
	return stripTags(buf.String()), nil
}

func (e *Extractor) extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open xlsx failed: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", fmt.Errorf("read xlsx sheet %q failed: %w", sheetName, err)
		}
		sb.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// stripTags removes HTML/XML tags and unescapes entities. Block tags
// become newlines so paragraph boundaries survive.
func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			sb.WriteRune('\n')
		case !inTag:
			sb.WriteRune(r)
		}
	}

	var out strings.Builder
	for _, line := range strings.Split(sb.String(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out.WriteString(html.UnescapeString(trimmed))
			out.WriteString("\n")
		}
	}
	return strings.TrimSpace(out.String())
}
