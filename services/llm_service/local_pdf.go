package llm_service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LocalPDFReader reads the text layer of a PDF without calling any model. It
// ignores the instruction and returns "" for scanned documents.
type LocalPDFReader struct {
	logger *slog.Logger
}

func NewLocalPDFReader(logger *slog.Logger) *LocalPDFReader {
	return &LocalPDFReader{logger: logger}
}

func (r *LocalPDFReader) IsAvailable() bool {
	return r != nil
}

func (r *LocalPDFReader) ExtractText(ctx context.Context, data []byte, mimeType, _ string) (string, error) {
	if mimeType != "application/pdf" {
		return "", fmt.Errorf("local reader cannot read %s", mimeType)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		r.logger.Error("Failed to create PDF reader",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	totalPage := reader.NumPage()
	r.logger.Debug("Starting PDF text extraction", slog.Int("total_pages", totalPage))

	var fullText strings.Builder
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			r.logger.Warn("Null page encountered", slog.Int("page_number", pageIndex))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			r.logger.Error("Failed to extract text from page",
				slog.Int("page_number", pageIndex),
				slog.String("error", err.Error()))
			return "", fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
		}
		fullText.WriteString(text)
		fullText.WriteString("\n")
	}

	r.logger.Info("Extracted text from PDF",
		slog.Int("total_pages", totalPage),
		slog.Int("total_text_length", fullText.Len()))

	return fullText.String(), nil
}
