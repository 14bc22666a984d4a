package listener

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mailcrm/internal"
	"mailcrm/internal/config"
	"mailcrm/internal/connectors"
	gmailconnector "mailcrm/internal/connectors/gmail"
	imapconnector "mailcrm/internal/connectors/imap"
	"mailcrm/internal/crm"
	"mailcrm/internal/events"
	"mailcrm/internal/metrics"
	"mailcrm/internal/pipeline"
	"mailcrm/internal/storage"
)

// Response is the outcome of one invocation as reported to the trigger.
type Response struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message,omitempty"`
	Timestamp string               `json:"timestamp"`
	Result    *internal.ScanResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
}

type MailboxFactory func(ctx context.Context) (connectors.Mailbox, error)

// CreatorFactory builds the CRM client for one invocation; logger carries the
// invocation's trace id.
type CreatorFactory func(logger *slog.Logger) (pipeline.ProductCreator, error)

type Service struct {
	cfg     config.Config
	opts    pipeline.Options
	journal *storage.DB
	metrics *metrics.Metrics
	events  events.Publisher
	logger  *slog.Logger

	newMailbox MailboxFactory
	newCreator CreatorFactory
	now        func() time.Time
}

type Option func(*Service)

// WithJournal records every invocation in db.
func WithJournal(db *storage.DB) Option {
	return func(s *Service) { s.journal = db }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithMailboxFactory(f MailboxFactory) Option {
	return func(s *Service) { s.newMailbox = f }
}

func WithCreatorFactory(f CreatorFactory) Option {
	return func(s *Service) { s.newCreator = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg config.Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:    cfg,
		opts:   pipeline.OptionsFromConfig(cfg),
		events: events.Noop{},
		logger: logger,
		now:    time.Now,
	}
	s.newMailbox = s.defaultMailbox
	s.newCreator = s.defaultCreator
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run invokes RunOnce every interval until ctx is done. Invocations never
// overlap; a failed one is logged and the loop goes on.
func (s *Service) Run(ctx context.Context) error {
	interval := s.cfg.ListenerInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("listener started", "provider", s.cfg.MailboxProvider, "interval", interval)

	for {
		resp := s.RunOnce(ctx, "listener")
		if !resp.Success {
			s.logger.Error("listener cycle failed", "error", resp.Error)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce performs one scan and never returns an error: failures are folded
// into the Response.
func (s *Service) RunOnce(ctx context.Context, trigger string) Response {
	started := s.now()
	traceID := newTraceID()
	logger := s.logger.With("trace_id", traceID, "trigger", trigger)
	logger.Info("scan started")

	result, err := s.scan(ctx, logger, started)
	elapsed := s.now().Sub(started)

	resp := Response{Timestamp: s.now().UTC().Format(time.RFC3339), Result: result}
	outcome := metrics.OutcomeNoMessage
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		resp.Error = err.Error()
		if result != nil {
			logger.Error("scan failed", "error", err, "message_id", result.MessageID, "products_created", result.ProductsCreated, "elapsed", elapsed)
		} else {
			logger.Error("scan failed", "error", err, "elapsed", elapsed)
		}
	case result != nil:
		outcome = metrics.OutcomeProcessed
		resp.Success = true
		resp.Message = fmt.Sprintf("email %s processed: %d products created (%s)", result.MessageID, result.ProductsCreated, result.HeaderCode)
		logger.Info("scan done", "message_id", result.MessageID, "products_created", result.ProductsCreated, "elapsed", elapsed)
	default:
		resp.Success = true
		resp.Message = "no new email"
		logger.Info("scan done", "message", resp.Message, "elapsed", elapsed)
	}

	if s.metrics != nil {
		created, skipped := 0, 0
		if result != nil {
			created, skipped = result.ProductsCreated, len(result.SkippedRows)
		}
		s.metrics.ObserveScan(outcome, created, skipped, elapsed)
	}
	// a failed scan is still announced when it created products
	if result != nil && (err == nil || len(result.Products) > 0) {
		if err := s.events.PublishScan(ctx, result); err != nil {
			logger.Warn("publish scan event", "error", err)
		}
	}
	s.record(logger, traceID, trigger, resp, elapsed)
	return resp
}

func (s *Service) scan(ctx context.Context, logger *slog.Logger, now time.Time) (*internal.ScanResult, error) {
	mailbox, err := s.newMailbox(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := mailbox.Close(); err != nil {
			logger.Warn("close mailbox", "error", err)
		}
	}()

	creator, err := s.newCreator(logger)
	if err != nil {
		return nil, err
	}

	return pipeline.NewScanner(mailbox, creator, s.opts, logger).Scan(ctx, now)
}

func (s *Service) record(logger *slog.Logger, traceID, trigger string, resp Response, elapsed time.Duration) {
	if s.journal == nil {
		return
	}
	run := internal.RunRecord{
		TraceID:    traceID,
		Trigger:    trigger,
		Success:    resp.Success,
		Error:      resp.Error,
		DurationMs: elapsed.Milliseconds(),
	}
	if resp.Result != nil {
		run.MessageID = resp.Result.MessageID
		run.HeaderCode = resp.Result.HeaderCode
		run.ProductsCreated = resp.Result.ProductsCreated
		run.SkippedRows = len(resp.Result.SkippedRows)
		run.Products = resp.Result.Products
	}
	if _, err := s.journal.InsertRun(run); err != nil {
		logger.Warn("journal run", "error", err)
		return
	}
	if resp.Success {
		if err := s.journal.SetMetadata("journal.last_success_at", resp.Timestamp); err != nil {
			logger.Warn("journal last success", "error", err)
		}
	}
}

func (s *Service) defaultMailbox(ctx context.Context) (connectors.Mailbox, error) {
	switch strings.ToLower(strings.TrimSpace(s.cfg.MailboxProvider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported mailbox provider: %s", s.cfg.MailboxProvider)
	}
}

func (s *Service) defaultCreator(logger *slog.Logger) (pipeline.ProductCreator, error) {
	client, err := crm.NewClient(s.cfg, logger)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		client.SetObserver(s.metrics)
	}
	return client, nil
}

func newTraceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
