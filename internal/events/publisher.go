// Package events publishes scan results to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"mailcrm/internal"
	"mailcrm/internal/config"
)

// Publisher announces the products created by a scan.
type Publisher interface {
	PublishScan(ctx context.Context, result *internal.ScanResult) error
	Close()
}

// ProductsCreated is the event body. One event is sent per processed message.
type ProductsCreated struct {
	MessageID  string                    `json:"messageId"`
	HeaderCode string                    `json:"ddeCode"`
	Products   []internal.CreatedProduct `json:"products"`
	OccurredAt string                    `json:"occurredAt"`
}

// NewPublisher connects to NATS when NATS_URL is set; otherwise scans are not
// announced.
func NewPublisher(ctx context.Context, cfg config.Config) (Publisher, error) {
	if strings.TrimSpace(cfg.NATSURL) == "" {
		return Noop{}, nil
	}
	p, err := NewJetStreamPublisher(cfg.NATSURL, cfg.NATSStream, cfg.NATSSubject)
	if err != nil {
		return nil, err
	}
	if err := p.EnsureStream(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

type Noop struct{}

func (Noop) PublishScan(context.Context, *internal.ScanResult) error { return nil }

func (Noop) Close() {}

type jetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetStream
	stream  string
	subject string
}

func NewJetStreamPublisher(url, stream, subject string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("mailcrm"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js, stream: stream, subject: subject}, nil
}

// EnsureStream creates the stream bound to the publish subject if it is
// missing.
func (p *JetStreamPublisher) EnsureStream(ctx context.Context) error {
	info, err := p.js.StreamInfo(p.stream, nats.Context(ctx))
	if err == nil && info != nil {
		return nil
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       p.stream,
		Subjects:   []string{p.subject},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	}, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishScan sends one event keyed by message id and first created product
// id, so a republished result is dropped by the stream's duplicate window
// while a later scan of the same message is not.
func (p *JetStreamPublisher) PublishScan(ctx context.Context, result *internal.ScanResult) error {
	if result == nil {
		return nil
	}
	payload, err := json.Marshal(ProductsCreated{
		MessageID:  result.MessageID,
		HeaderCode: result.HeaderCode,
		Products:   result.Products,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(p.subject, payload, nats.MsgId(eventID(result)), nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *JetStreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

func eventID(result *internal.ScanResult) string {
	id := "scan-" + result.MessageID
	if len(result.Products) > 0 {
		id += "-" + strconv.FormatInt(result.Products[0].ID, 10)
	}
	return id
}
