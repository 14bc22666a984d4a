package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"mailcrm/internal"
	"mailcrm/internal/connectors"
)

type ProductCreator interface {
	CreateProduct(ctx context.Context, record internal.ProductRecord) (int64, error)
}

type Scanner struct {
	mailbox   connectors.Mailbox
	creator   ProductCreator
	locator   *Locator
	extractor *Extractor
	builder   *Builder
	opts      Options
	logger    *slog.Logger
}

func NewScanner(mailbox connectors.Mailbox, creator ProductCreator, opts Options, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		mailbox:   mailbox,
		creator:   creator,
		locator:   NewLocator(mailbox, opts, logger),
		extractor: NewExtractor(opts, logger),
		builder:   NewBuilder(opts),
		opts:      opts,
		logger:    logger,
	}
}

// Scan looks at the mailbox once. The first message, in mailbox order, that is
// fresh and carries a qualifying spreadsheet is processed and its result
// returned; later messages are not examined. A nil result with a nil error
// means nothing was processed.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (*internal.ScanResult, error) {
	if !hasSender(s.opts.Senders) {
		return nil, ErrNoSenders
	}
	query := connectors.Query{
		Senders:       s.opts.Senders,
		HasAttachment: true,
		FilenameExt:   s.opts.FilenameExt,
		Since:         now.Add(-s.opts.FreshnessWindow),
		MaxResults:    s.opts.MaxResults,
	}
	ids, err := s.mailbox.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		s.logger.Info("no candidate messages")
		return nil, nil
	}

	for _, id := range ids {
		msg, err := s.mailbox.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}

		sent, err := ParseMessageDate(msg.Header("Date"))
		if err != nil {
			s.logger.Warn("message skipped", "message_id", id, "reason", "date", "error", err)
			continue
		}

		age := now.Sub(sent)
		if age < 0 || age > s.opts.FreshnessWindow {
			s.logger.Debug("message skipped", "message_id", id, "reason", "age", "age", age.Round(time.Second))
			continue
		}
		s.logger.Info("message eligible", "message_id", id, "age", age.Round(time.Second))

		doc, err := s.locator.Locate(ctx, msg)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		return s.Process(ctx, id, doc)
	}

	s.logger.Info("no eligible message with attachment", "candidates", len(ids))
	return nil, nil
}

// Process extracts the spreadsheet and creates one CRM product per unique key
// value, in ascending key order. The first creation failure aborts the run; the
// result is still returned alongside the error and lists the products created
// before it.
func (s *Scanner) Process(ctx context.Context, messageID string, doc []byte) (*internal.ScanResult, error) {
	extraction, err := s.extractor.Extract(doc)
	if err != nil {
		return nil, err
	}

	result := &internal.ScanResult{
		MessageID:   messageID,
		HeaderCode:  extraction.HeaderCode,
		Products:    make([]internal.CreatedProduct, 0, len(extraction.Rows)),
		SkippedRows: extraction.Skipped,
	}
	for _, row := range extraction.Rows {
		record := s.builder.Build(row, extraction.HeaderCode)
		id, err := s.creator.CreateProduct(ctx, record)
		if err != nil {
			result.ProductsCreated = len(result.Products)
			return result, fmt.Errorf("create product %s: %w", record.Name, err)
		}
		s.logger.Info("product created", "id", id, "number", record.Number, "code", record.Code)
		result.Products = append(result.Products, internal.CreatedProduct{
			ID:     id,
			Number: record.Number,
			Name:   record.Name,
			Code:   record.Code,
		})
	}
	result.ProductsCreated = len(result.Products)
	return result, nil
}

func hasSender(senders []string) bool {
	for _, sender := range senders {
		if strings.TrimSpace(sender) != "" {
			return true
		}
	}
	return false
}

var dateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}

func ParseMessageDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &ParseError{Stage: "date", Err: errors.New("missing Date header")}
	}
	if parsed, err := mail.ParseDate(value); err == nil {
		return parsed, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, &ParseError{Stage: "date", Input: value, Err: errors.New("unsupported date format")}
}
