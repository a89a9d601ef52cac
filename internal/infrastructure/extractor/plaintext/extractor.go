package plaintext

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type FileOpener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Reader reads .txt records. Content must be valid UTF-8; a leading BOM is dropped.
type Reader struct {
	files FileOpener
}

func NewReader(files FileOpener) *Reader {
	return &Reader{files: files}
}

func (r *Reader) ReadText(ctx context.Context, path string) (string, error) {
	reader, err := r.files.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open text document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read text document: %w", err)
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("text document is not valid UTF-8: %s", filepath.Base(path))
	}

	text := strings.TrimPrefix(string(raw), "﻿")
	return strings.TrimSpace(text), nil
}
