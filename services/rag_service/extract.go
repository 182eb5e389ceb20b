package rag_service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/serisow/sagefemme/services/llm_service"
)

const pdfInstruction = "Extrais tout le texte de ce document PDF. Retourne UNIQUEMENT le texte brut, sans formatage markdown, sans commentaires. Conserve la structure des paragraphes."

const MimeTypePDF = "application/pdf"

var officeMimeTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/msword":                      true,
	"application/vnd.oasis.opendocument.text": true,
	"application/rtf":                         true,
	"text/rtf":                                true,
}

// TextExtractor turns uploaded bytes into cleaned plain text.
type TextExtractor struct {
	reader llm_service.DocumentReader
	logger *slog.Logger
}

// NewTextExtractor builds an extractor. reader handles PDFs and may be nil,
// in which case PDF uploads fail with ErrExtraction.
func NewTextExtractor(reader llm_service.DocumentReader, logger *slog.Logger) *TextExtractor {
	return &TextExtractor{
		reader: reader,
		logger: logger,
	}
}

func (e *TextExtractor) IsAvailable() bool {
	return e.reader != nil && e.reader.IsAvailable()
}

// Extract returns the cleaned text of data. It returns ErrEmptyContent when
// nothing is left after cleaning.
func (e *TextExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	mimeType = normalizeMimeType(mimeType)

	var (
		raw string
		err error
	)
	switch {
	case mimeType == MimeTypePDF:
		raw, err = e.extractPDF(ctx, data)
	case officeMimeTypes[mimeType]:
		raw, err = e.extractOffice(data, mimeType)
	case mimeType == "text/html":
		raw, err = e.extractHTML(data)
	default:
		raw = strings.ToValidUTF8(string(data), "\uFFFD")
	}
	if err != nil {
		return "", err
	}

	text := CleanText(raw)
	if text == "" {
		e.logger.Warn("No text extracted from document",
			slog.String("mime_type", mimeType),
			slog.Int("data_size", len(data)))
		return "", ErrEmptyContent
	}

	e.logger.Debug("Extracted document text",
		slog.String("mime_type", mimeType),
		slog.Int("text_length", len(text)))
	return text, nil
}

func (e *TextExtractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	if !e.IsAvailable() {
		return "", fmt.Errorf("%w: no PDF reader configured", ErrExtraction)
	}

	text, err := e.reader.ExtractText(ctx, data, MimeTypePDF, pdfInstruction)
	if err != nil {
		e.logger.Error("PDF extraction failed",
			slog.Int("data_size", len(data)),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return text, nil
}

func (e *TextExtractor) extractOffice(data []byte, mimeType string) (string, error) {
	result, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		e.logger.Error("Failed to convert office document",
			slog.String("mime_type", mimeType),
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("%w: failed to convert %s: %v", ErrExtraction, mimeType, err)
	}
	return result.Body, nil
}

func (e *TextExtractor) extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse HTML: %v", ErrExtraction, err)
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// CleanText strips NUL and the C0 control characters other than tab, line
// feed and carriage return, then trims surrounding whitespace.
func CleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func normalizeMimeType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
