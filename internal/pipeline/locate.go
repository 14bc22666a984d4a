package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"mailcrm/internal"
	"mailcrm/internal/connectors"
)

type Locator struct {
	mailbox connectors.Mailbox
	prefix  string
	exts    []string
	logger  *slog.Logger
}

func NewLocator(mailbox connectors.Mailbox, opts Options, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	exts := make([]string, 0, len(opts.AttachmentExts))
	for _, ext := range opts.AttachmentExts {
		exts = append(exts, strings.ToLower(ext))
	}
	return &Locator{
		mailbox: mailbox,
		prefix:  strings.ToUpper(opts.AttachmentPrefix),
		exts:    exts,
		logger:  logger,
	}
}

func (l *Locator) isSpreadsheet(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range l.exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Qualifies reports whether a filename names a spreadsheet carrying the
// required prefix.
func (l *Locator) Qualifies(filename string) bool {
	return filename != "" && l.isSpreadsheet(filename) && strings.HasPrefix(strings.ToUpper(filename), l.prefix)
}

// Locate walks the part tree depth-first, siblings in order, and returns the
// decoded body of the first qualifying attachment. A nil slice with a nil error
// means the message carries no usable spreadsheet.
func (l *Locator) Locate(ctx context.Context, msg *internal.Message) ([]byte, error) {
	return l.walk(ctx, msg.ID, msg.Parts)
}

func (l *Locator) walk(ctx context.Context, messageID string, parts []internal.Part) ([]byte, error) {
	for i := range parts {
		data, err := l.visit(ctx, messageID, &parts[i])
		if err != nil || data != nil {
			return data, err
		}
	}
	return nil, nil
}

func (l *Locator) visit(ctx context.Context, messageID string, part *internal.Part) ([]byte, error) {
	if part.Filename != "" && l.isSpreadsheet(part.Filename) {
		switch {
		case !l.Qualifies(part.Filename):
			l.logger.Info("spreadsheet ignored", "message_id", messageID, "filename", part.Filename, "reason", "prefix")
		case part.AttachmentID == "":
			l.logger.Info("spreadsheet ignored", "message_id", messageID, "filename", part.Filename, "reason", "no attachment id")
		default:
			l.logger.Info("spreadsheet found", "message_id", messageID, "filename", part.Filename)
			return l.fetch(ctx, messageID, part.AttachmentID)
		}
	}
	return l.walk(ctx, messageID, part.Parts)
}

func (l *Locator) fetch(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	encoded, err := l.mailbox.GetAttachment(ctx, messageID, attachmentID)
	if err != nil {
		return nil, &AttachmentFetchError{MessageID: messageID, AttachmentID: attachmentID, Err: err}
	}
	data, err := decodeBase64URL(encoded)
	if err != nil {
		return nil, &AttachmentFetchError{MessageID: messageID, AttachmentID: attachmentID, Err: err}
	}
	l.logger.Info("spreadsheet downloaded", "message_id", messageID, "bytes", len(data))
	return data, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode attachment payload: %w", err)
}
