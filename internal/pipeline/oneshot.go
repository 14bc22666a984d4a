package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mailcrm/internal"
	"mailcrm/internal/connectors"
)

var ErrNoAttachment = errors.New("no qualifying spreadsheet attachment")

// PreviewFile runs extraction and record building on a local .xlsx or .eml
// file without touching the mailbox or the CRM.
func PreviewFile(ctx context.Context, path string, opts Options, logger *slog.Logger) (*Extraction, []internal.ProductRecord, error) {
	doc, err := loadDocument(ctx, path, opts, logger)
	if err != nil {
		return nil, nil, err
	}

	extraction, err := NewExtractor(opts, logger).Extract(doc)
	if err != nil {
		return nil, nil, err
	}

	builder := NewBuilder(opts)
	records := make([]internal.ProductRecord, 0, len(extraction.Rows))
	for _, row := range extraction.Rows {
		records = append(records, builder.Build(row, extraction.HeaderCode))
	}
	return extraction, records, nil
}

func loadDocument(ctx context.Context, path string, opts Options, logger *slog.Logger) ([]byte, error) {
	if strings.ToLower(filepath.Ext(path)) != ".eml" {
		return os.ReadFile(path)
	}

	mailbox, err := connectors.OpenEML(path)
	if err != nil {
		return nil, err
	}
	defer mailbox.Close()

	doc, err := NewLocator(mailbox, opts, logger).Locate(ctx, mailbox.Message())
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNoAttachment
	}
	return doc, nil
}
