package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailcrm/internal"
	"mailcrm/internal/config"
)

// Observer receives one call per HTTP attempt with its outcome label
// ("created", "rate_limited", "transport_error", "rejected").
type Observer interface {
	ObserveCRMRequest(outcome string)
}

type Client struct {
	baseURL     string
	token       string
	currency    string
	visibleTo   string
	defaultUnit string
	maxAttempts int
	backoff     time.Duration

	httpClient *http.Client
	limiter    *RateLimiter
	observer   Observer
	logger     *slog.Logger
}

type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type createdPayload struct {
	ID *int64 `json:"id"`
}

type productBody struct {
	Name        string       `json:"name"`
	Code        string       `json:"code"`
	VisibleTo   string       `json:"visible_to"`
	Description string       `json:"description,omitempty"`
	Prices      []priceEntry `json:"prices,omitempty"`
	Unit        string       `json:"unit,omitempty"`
}

type priceEntry struct {
	Currency string  `json:"currency"`
	Price    float64 `json:"price"`
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Require("PIPEDRIVE_TOKEN", cfg.CRMAPIToken); err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.CRMBaseURL), "/")
	if baseURL == "" {
		if err := cfg.Require("PIPEDRIVE_DOMAIN", cfg.CRMDomain); err != nil {
			return nil, err
		}
		baseURL = fmt.Sprintf("https://%s.pipedrive.com/api/v1", strings.TrimSpace(cfg.CRMDomain))
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxAttempts := cfg.CRMMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &Client{
		baseURL:     baseURL,
		token:       cfg.CRMAPIToken,
		currency:    cfg.CRMCurrency,
		visibleTo:   cfg.CRMVisibleTo,
		defaultUnit: cfg.CRMDefaultUnit,
		maxAttempts: maxAttempts,
		backoff:     cfg.CRMRetryBackoff(),
		httpClient:  &http.Client{Timeout: cfg.CRMTimeout()},
		limiter:     NewRateLimiter(cfg.CRMRateLimitRPS),
		logger:      logger,
	}, nil
}

func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveCRMRequest(outcome)
	}
}

// CreateProduct creates one product and returns its CRM id. Rate limiting and
// transport failures are retried with a fixed pause; any other rejection is
// final.
func (c *Client) CreateProduct(ctx context.Context, record internal.ProductRecord) (int64, error) {
	payload, err := json.Marshal(c.body(record))
	if err != nil {
		return 0, &RemoteCreateError{Kind: Permanent, Err: err}
	}

	u, err := url.Parse(c.baseURL + "/products")
	if err != nil {
		return 0, &RemoteCreateError{Kind: Permanent, Err: err}
	}
	q := u.Query()
	q.Set("api_token", c.token)
	u.RawQuery = q.Encode()

	var lastErr error
	lastStatus := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.backoff); err != nil {
				return 0, &RemoteCreateError{Kind: Transient, Status: lastStatus, Attempts: attempt - 1, Err: err}
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, &RemoteCreateError{Kind: Transient, Status: lastStatus, Attempts: attempt - 1, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
		if err != nil {
			return 0, &RemoteCreateError{Kind: Permanent, Attempts: attempt, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.observe("transport_error")
			c.logger.Warn("crm request failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			c.observe("transport_error")
			lastErr = readErr
			continue
		}

		lastStatus = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests {
			c.observe("rate_limited")
			c.logger.Warn("crm rate limited", "attempt", attempt)
			lastErr = fmt.Errorf("pipedrive status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.observe("rejected")
			return 0, &RemoteCreateError{
				Kind:     Permanent,
				Status:   resp.StatusCode,
				Attempts: attempt,
				Err:      fmt.Errorf("pipedrive api error: body=%s", truncateBody(body)),
			}
		}

		id, err := parseCreatedID(body)
		if err != nil {
			c.observe("rejected")
			return 0, &RemoteCreateError{Kind: Permanent, Status: resp.StatusCode, Attempts: attempt, Err: err}
		}
		c.observe("created")
		return id, nil
	}

	if lastErr == nil {
		lastErr = errors.New("pipedrive request failed")
	}
	return 0, &RemoteCreateError{Kind: Transient, Status: lastStatus, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) body(record internal.ProductRecord) productBody {
	body := productBody{
		Name:      record.Name,
		Code:      record.Code,
		VisibleTo: c.visibleTo,
	}
	if strings.TrimSpace(record.Description) != "" {
		body.Description = record.Description
	}
	if record.Price > 0 {
		body.Prices = []priceEntry{{Currency: c.currency, Price: record.Price}}
	}
	if record.Unit != "" && record.Unit != c.defaultUnit {
		body.Unit = record.Unit
	}
	return body
}

func parseCreatedID(body []byte) (int64, error) {
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return 0, fmt.Errorf("decode pipedrive response: %w", err)
	}
	if len(apiResp.Data) == 0 || string(apiResp.Data) == "null" {
		return 0, fmt.Errorf("pipedrive response without data: %s", apiResp.Error)
	}
	var created createdPayload
	if err := json.Unmarshal(apiResp.Data, &created); err != nil {
		return 0, fmt.Errorf("decode pipedrive product: %w", err)
	}
	if created.ID == nil {
		return 0, errors.New("pipedrive response without product id")
	}
	return *created.ID, nil
}

func truncateBody(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
