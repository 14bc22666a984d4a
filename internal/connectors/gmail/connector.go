package gmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailcrm/internal"
	"mailcrm/internal/config"
	"mailcrm/internal/connectors"
)

type Connector struct {
	service *gmail.Service
	user    string
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	return NewWithService(svc, cfg.GmailUser), nil
}

func NewWithService(svc *gmail.Service, user string) *Connector {
	if strings.TrimSpace(user) == "" {
		user = "me"
	}
	return &Connector{service: svc, user: user}
}

func (c *Connector) Search(ctx context.Context, q connectors.Query) ([]string, error) {
	call := c.service.Users.Messages.List(c.user).Q(BuildQuery(q)).Context(ctx)
	if q.MaxResults > 0 {
		call = call.MaxResults(int64(q.MaxResults))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("gmail search: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		if ref == nil || ref.Id == "" {
			continue
		}
		ids = append(ids, ref.Id)
	}
	return ids, nil
}

func (c *Connector) GetMessage(ctx context.Context, id string) (*internal.Message, error) {
	msg, err := c.service.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail get message %s: %w", id, err)
	}
	return toMessage(msg), nil
}

func (c *Connector) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	body, err := c.service.Users.Messages.Attachments.Get(c.user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail get attachment %s: %w", attachmentID, err)
	}
	return body.Data, nil
}

func (c *Connector) Close() error {
	return nil
}

// BuildQuery renders a connectors.Query in Gmail search syntax, e.g.
// `(from:a@x OR from:b@x) has:attachment filename:xlsx`.
func BuildQuery(q connectors.Query) string {
	terms := make([]string, 0, 4)

	senders := make([]string, 0, len(q.Senders))
	for _, s := range q.Senders {
		if s = strings.TrimSpace(s); s != "" {
			senders = append(senders, "from:"+s)
		}
	}
	switch len(senders) {
	case 0:
	case 1:
		terms = append(terms, senders[0])
	default:
		terms = append(terms, "("+strings.Join(senders, " OR ")+")")
	}

	if q.HasAttachment {
		terms = append(terms, "has:attachment")
	}
	if ext := strings.TrimPrefix(strings.TrimSpace(q.FilenameExt), "."); ext != "" {
		terms = append(terms, "filename:"+ext)
	}
	if !q.Since.IsZero() {
		// after: is day-granular and evaluated in the mailbox timezone; widen by a day.
		terms = append(terms, "after:"+q.Since.Add(-24*time.Hour).Format("2006/01/02"))
	}
	return strings.Join(terms, " ")
}

func toMessage(msg *gmail.Message) *internal.Message {
	out := &internal.Message{ID: msg.Id}
	if msg.Payload == nil {
		return out
	}
	for _, h := range msg.Payload.Headers {
		if h == nil {
			continue
		}
		out.Headers = append(out.Headers, internal.Header{Name: h.Name, Value: h.Value})
	}
	out.Parts = toParts(msg.Payload.Parts)
	return out
}

func toParts(parts []*gmail.MessagePart) []internal.Part {
	if len(parts) == 0 {
		return nil
	}
	out := make([]internal.Part, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		part := internal.Part{
			PartID:   p.PartId,
			Filename: p.Filename,
			MimeType: p.MimeType,
			Parts:    toParts(p.Parts),
		}
		if p.Body != nil {
			part.AttachmentID = p.Body.AttachmentId
		}
		out = append(out, part)
	}
	return out
}
