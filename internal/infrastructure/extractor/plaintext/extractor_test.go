package plaintext

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type openerFake struct {
	content string
	err     error
}

func (f *openerFake) Open(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func TestReadTextTrimsBOMAndSpace(t *testing.T) {
	got, err := NewReader(&openerFake{content: "﻿  Huyết áp 140/90 \n"}).ReadText(context.Background(), "/tmp/a.txt")
	if err != nil {
		t.Fatalf("ReadText() error = %v", err)
	}
	if got != "Huyết áp 140/90" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestReadTextRejectsBinary(t *testing.T) {
	_, err := NewReader(&openerFake{content: string([]byte{0xff, 0xfe, 0x00})}).ReadText(context.Background(), "/tmp/a.txt")
	if err == nil || !strings.Contains(err.Error(), "UTF-8") {
		t.Fatalf("expected utf-8 error, got %v", err)
	}
}

func TestReadTextOpenError(t *testing.T) {
	openErr := errors.New("gone")
	_, err := NewReader(&openerFake{err: openErr}).ReadText(context.Background(), "/tmp/a.txt")
	if !errors.Is(err, openErr) {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
}
