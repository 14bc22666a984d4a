package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"mailcrm/internal"
	"mailcrm/internal/config"
	"mailcrm/internal/connectors"
)

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	mailbox  string

	mu          sync.Mutex
	client      *imapclient.Client
	attachments map[string]map[string][]byte
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:        cfg.IMAPHost,
		port:        cfg.IMAPPort,
		secure:      cfg.IMAPSecure,
		user:        cfg.IMAPUser,
		password:    cfg.IMAPPassword,
		mailbox:     cfg.IMAPMailbox,
		attachments: map[string]map[string][]byte{},
	}, nil
}

func (c *Connector) connect() (*imapclient.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, err
	}

	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, err
	}
	if _, err := client.Select(c.mailbox, true); err != nil {
		_ = client.Logout()
		return nil, err
	}

	c.client = client
	return client, nil
}

// Search returns message UIDs newest first. IMAP has no attachment or filename
// criteria, so only senders and the date floor narrow the result; the
// attachment locator does the rest.
func (c *Connector) Search(_ context.Context, q connectors.Query) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	uids, err := client.UidSearch(BuildCriteria(q))
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if q.MaxResults > 0 && len(uids) > q.MaxResults {
		uids = uids[len(uids)-q.MaxResults:]
	}

	out := make([]string, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		out = append(out, strconv.FormatUint(uint64(uids[i]), 10))
	}
	return out, nil
}

func (c *Connector) GetMessage(_ context.Context, id string) (*internal.Message, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap uid %q: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.UidFetch(seqset, items, messages) }()

	var raw []byte
	for msg := range messages {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		if raw, err = io.ReadAll(body); err != nil {
			return nil, err
		}
	}
	if err := <-fetchDone; err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("imap message %s not found", id)
	}

	msg, attachments, err := connectors.ParseMIME(id, raw)
	if err != nil {
		return nil, err
	}
	c.attachments[id] = attachments
	return msg, nil
}

// GetAttachment serves bodies captured by the preceding GetMessage call for the
// same message.
func (c *Connector) GetAttachment(_ context.Context, messageID, attachmentID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attachments, ok := c.attachments[messageID]
	if !ok {
		return "", fmt.Errorf("message %s was not fetched", messageID)
	}
	return connectors.EncodeAttachment(attachments, messageID, attachmentID)
}

func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attachments = map[string]map[string][]byte{}
	if c.client == nil {
		return nil
	}
	err := c.client.Logout()
	c.client = nil
	return err
}

// BuildCriteria folds the sender allow-list into nested OR FROM terms and adds
// a SINCE floor. SINCE is date-only, so it is widened by a day.
func BuildCriteria(q connectors.Query) *imap.SearchCriteria {
	criteria := senderCriteria(q.Senders)
	if !q.Since.IsZero() {
		criteria.Since = q.Since.Add(-24 * time.Hour)
	}
	return criteria
}

func senderCriteria(senders []string) *imap.SearchCriteria {
	if len(senders) == 0 {
		return imap.NewSearchCriteria()
	}

	leaf := func(sender string) *imap.SearchCriteria {
		c := imap.NewSearchCriteria()
		c.Header.Add("From", sender)
		return c
	}

	acc := leaf(senders[0])
	for _, sender := range senders[1:] {
		next := imap.NewSearchCriteria()
		next.Or = [][2]*imap.SearchCriteria{{acc, leaf(sender)}}
		acc = next
	}
	return acc
}
