package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// Parser extracts the embedded text layer of a PDF locally. It is used when no
// parsing provider is configured; scanned PDFs without a text layer yield "".
type Parser struct {
	files FileReader
}

func NewParser(files FileReader) *Parser {
	return &Parser{files: files}
}

func (p *Parser) Parse(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := p.files.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	text, err := plainText(raw)
	if err != nil {
		return "", domain.WrapError(domain.ErrParsingFailed, "extract pdf text", err)
	}
	return strings.TrimSpace(text), nil
}

func plainText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
