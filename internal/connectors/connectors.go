package connectors

import (
	"context"
	"time"

	"mailcrm/internal"
)

// Query describes the candidate messages a scan is interested in. Connectors
// translate it into whatever search syntax their backend understands.
type Query struct {
	Senders       []string
	HasAttachment bool
	FilenameExt   string
	Since         time.Time
	MaxResults    int
}

type Mailbox interface {
	Search(ctx context.Context, q Query) ([]string, error)
	GetMessage(ctx context.Context, id string) (*internal.Message, error)
	// GetAttachment returns the attachment body base64url-encoded, the way the
	// Gmail API delivers it.
	GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error)
	Close() error
}
