// Package extract turns uploaded artifacts into plain text: PDFs are read
// directly with their layout preserved line by line, images go through OCR.
package extract

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Extractor returns the text content of data. filename is used for format
// detection and error messages only; data is never modified.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, error)
}

// Kind is the broad artifact family chosen from a file extension.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindImage
)

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// MIMEType maps a filename to the MIME type sent to OCR and AI delegates.
func MIMEType(filename string) string {
	if m, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return m
	}
	return "application/octet-stream"
}

// KindOf classifies filename by extension.
func KindOf(filename string) Kind {
	switch MIMEType(filename) {
	case "application/pdf":
		return KindPDF
	case "image/jpeg", "image/png", "image/webp":
		return KindImage
	default:
		return KindUnknown
	}
}

// Sniff checks the leading bytes of data against the type declared by the
// extension and returns the detected MIME type.
func Sniff(data []byte, filename string) (string, error) {
	detected := http.DetectContentType(data)
	detected = strings.ToLower(strings.TrimSpace(strings.Split(detected, ";")[0]))

	declared := MIMEType(filename)
	if declared == "application/octet-stream" {
		return detected, domain.NewExtractionError(filename, "unsupported format", nil)
	}
	if detected != declared {
		return detected, domain.NewExtractionError(filename, "content is "+detected+", extension says "+declared, nil)
	}
	return detected, nil
}

// Router dispatches to the PDF or image extractor by file type.
type Router struct {
	PDF   Extractor
	Image Extractor
}

// ForFile returns the extractor that handles filename.
func (r *Router) ForFile(filename string) (Extractor, error) {
	switch KindOf(filename) {
	case KindPDF:
		if r.PDF != nil {
			return r.PDF, nil
		}
	case KindImage:
		if r.Image != nil {
			return r.Image, nil
		}
	}
	return nil, domain.NewExtractionError(filename, "unsupported format", nil)
}

// Extract sniffs data and hands it to the matching extractor.
func (r *Router) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	log := logger.FromContext(ctx)

	if len(data) == 0 {
		return "", domain.NewExtractionError(filename, "empty file", nil)
	}
	ex, err := r.ForFile(filename)
	if err != nil {
		return "", err
	}
	if _, err := Sniff(data, filename); err != nil {
		return "", err
	}

	text, err := ex.Extract(ctx, data, filename)
	if err != nil {
		return "", err
	}
	log.Debug().Str("filename", filename).Int("chars", len(text)).Msg("extract: text ready")
	return text, nil
}
