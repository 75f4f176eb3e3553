package services

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
)

// GraphFileInput is a raw uploaded document. PDFs and other binary formats
// are forwarded to the model as a base64 data URL; only plain text and
// markdown are read locally.
type GraphFileInput struct {
	Filename string
	MimeType string
	Data     []byte
}

var supportedExtensions = map[string]bool{
	"pdf":  true,
	"txt":  true,
	"doc":  true,
	"docx": true,
	"md":   true,
}

var extensionMimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"md":   "text/markdown",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func fileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// validateGraphFile rejects unsupported or oversized files before any
// network call is made.
func validateGraphFile(file GraphFileInput, maxFileSizeMB int) error {
	sizeMB := float64(len(file.Data)) / (1024 * 1024)
	if sizeMB > float64(maxFileSizeMB) {
		return fmt.Errorf("%w: file too large (%.1fMB, max %dMB)", ErrInvalidInput, sizeMB, maxFileSizeMB)
	}
	ext := fileExtension(file.Filename)
	if !supportedExtensions[ext] {
		return fmt.Errorf("%w: unsupported format (.%s), use PDF, TXT, DOCX or MD", ErrInvalidInput, ext)
	}
	return nil
}

func fileToDataURL(file GraphFileInput) string {
	mime := strings.TrimSpace(file.MimeType)
	if mime == "" {
		mime = extensionMimeTypes[fileExtension(file.Filename)]
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(file.Data)
}

// prepareText trims, enforces the minimum accepted length and truncates to
// the maximum before any prompt is built.
func prepareText(text string, minChars, maxChars int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minChars {
		return "", fmt.Errorf("%w: text too short (%d chars, minimum %d)", ErrInvalidInput, len(trimmed), minChars)
	}
	if len(trimmed) > maxChars {
		trimmed = trimmed[:maxChars]
	}
	return trimmed, nil
}
