package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	UnitChars  = "chars"
	UnitTokens = "tokens"

	tokenEncoding = "cl100k_base"
)

// Chunker splits extracted text into fixed-size overlapping windows.
// Size and overlap are measured in the configured unit.
type Chunker struct {
	size    int
	overlap int
	unit    string
}

func New(size, overlap int, unit string) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	switch unit {
	case UnitChars, UnitTokens:
	default:
		return nil, fmt.Errorf("unknown chunk unit %q", unit)
	}
	return &Chunker{size: size, overlap: overlap, unit: unit}, nil
}

// Split returns the chunks of text in document order. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if c.unit == UnitTokens {
		return c.splitTokens(text)
	}
	return c.splitRunes(text), nil
}

func (c *Chunker) splitRunes(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func (c *Chunker) splitTokens(text string) ([]string, error) {
	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding failed: %w", err)
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= c.size {
		return []string{text}, nil
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := strings.TrimSpace(enc.Decode(tokens[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
