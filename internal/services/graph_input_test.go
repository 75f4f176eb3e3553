package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestValidateGraphFile(t *testing.T) {
	ok := GraphFileInput{Filename: "notes.pdf", Data: []byte("%PDF-1.4")}
	if err := validateGraphFile(ok, 20); err != nil {
		t.Fatalf("valid pdf rejected: %v", err)
	}

	unsupported := GraphFileInput{Filename: "slides.pptx", Data: []byte("x")}
	if err := validateGraphFile(unsupported, 20); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for pptx, got %v", err)
	}

	huge := GraphFileInput{Filename: "book.pdf", Data: bytes.Repeat([]byte("a"), 2*1024*1024)}
	if err := validateGraphFile(huge, 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for oversized file, got %v", err)
	}
}

func TestFileToDataURL(t *testing.T) {
	url := fileToDataURL(GraphFileInput{Filename: "notes.pdf", Data: []byte("abc")})
	if !strings.HasPrefix(url, "data:application/pdf;base64,") {
		t.Fatalf("mime not inferred from extension: %q", url)
	}

	url = fileToDataURL(GraphFileInput{Filename: "weird.bin", MimeType: "application/x-thing", Data: []byte("abc")})
	if !strings.HasPrefix(url, "data:application/x-thing;base64,") {
		t.Fatalf("explicit mime ignored: %q", url)
	}
}

func TestPrepareText(t *testing.T) {
	if _, err := prepareText("   tiny   ", 80, 100); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short text, got %v", err)
	}

	long := strings.Repeat("a", 200)
	out, err := prepareText(long, 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 100 {
		t.Fatalf("expected truncation to 100 chars, got %d", len(out))
	}
}
