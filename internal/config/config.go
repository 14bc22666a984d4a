package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	MailboxProvider string

	ScanSenders       []string
	ScanMaxResults    int
	ScanFreshnessSec  int
	ScanFilenameExt   string
	AttachmentPrefix  string
	AttachmentExts    []string
	HeaderCodePrefix  string
	DefaultHeaderCode string
	DataSkipRows      int
	ProductUnit       string

	CRMDomain         string
	CRMAPIToken       string
	CRMBaseURL        string
	CRMTimeoutMs      int
	CRMMaxAttempts    int
	CRMRetryBackoffMs int
	CRMRateLimitRPS   int
	CRMCurrency       string
	CRMVisibleTo      string
	CRMDefaultUnit    string

	SecretsProvider       string
	SecretGmailCredential string
	SecretCRMDomain       string
	SecretCRMToken        string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
	GmailUser         string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string

	JournalPath string

	NATSURL     string
	NATSStream  string
	NATSSubject string

	ListenerIntervalSec int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MailboxProvider: getEnv("MAILBOX_PROVIDER", "gmail"),

		ScanSenders:       getEnvList("SCAN_SENDERS", nil),
		ScanMaxResults:    getEnvInt("SCAN_MAX_RESULTS", 10),
		ScanFreshnessSec:  getEnvInt("SCAN_FRESHNESS_SEC", 120),
		ScanFilenameExt:   getEnv("SCAN_FILENAME_EXT", "xlsx"),
		AttachmentPrefix:  getEnv("ATTACHMENT_PREFIX", "DDE"),
		AttachmentExts:    getEnvList("ATTACHMENT_EXTS", []string{".xlsx", ".xls"}),
		HeaderCodePrefix:  getEnv("HEADER_CODE_PREFIX", "KF"),
		DefaultHeaderCode: getEnv("DEFAULT_HEADER_CODE", "DDE_DEFAULT"),
		DataSkipRows:      getEnvInt("DATA_SKIP_ROWS", 10),
		ProductUnit:       getEnv("PRODUCT_UNIT", "pz"),

		CRMDomain:         getEnv("PIPEDRIVE_DOMAIN", ""),
		CRMAPIToken:       getEnv("PIPEDRIVE_TOKEN", ""),
		CRMBaseURL:        getEnv("PIPEDRIVE_BASE_URL", ""),
		CRMTimeoutMs:      getEnvInt("PIPEDRIVE_TIMEOUT_MS", 30000),
		CRMMaxAttempts:    getEnvInt("PIPEDRIVE_MAX_ATTEMPTS", 3),
		CRMRetryBackoffMs: getEnvInt("PIPEDRIVE_RETRY_BACKOFF_MS", 2000),
		CRMRateLimitRPS:   getEnvInt("PIPEDRIVE_RATE_LIMIT_RPS", 5),
		CRMCurrency:       getEnv("PIPEDRIVE_CURRENCY", "USD"),
		CRMVisibleTo:      getEnv("PIPEDRIVE_VISIBLE_TO", "3"),
		CRMDefaultUnit:    getEnv("PIPEDRIVE_DEFAULT_UNIT", "pz"),

		SecretsProvider:       getEnv("SECRETS_PROVIDER", "env"),
		SecretGmailCredential: getEnv("SECRET_GMAIL_CREDENTIALS", "gmail-credentials"),
		SecretCRMDomain:       getEnv("SECRET_PIPEDRIVE_DOMAIN", "pipedrive-domain"),
		SecretCRMToken:        getEnv("SECRET_PIPEDRIVE_TOKEN", "pipedrive-token"),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailUser:         getEnv("GMAIL_USER", "me"),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),

		JournalPath: getEnv("JOURNAL_DB_PATH", ""),

		NATSURL:     getEnv("NATS_URL", ""),
		NATSStream:  getEnv("NATS_STREAM", "MAILCRM"),
		NATSSubject: getEnv("NATS_SUBJECT", "mailcrm.products.created"),

		ListenerIntervalSec: getEnvInt("LISTENER_INTERVAL_SEC", 60),
	}

	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = ":" + getEnv("PORT", "8080")
	}
	if cfg.JournalPath != "" && !filepath.IsAbs(cfg.JournalPath) {
		cfg.JournalPath = filepath.Join(cwd, cfg.JournalPath)
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) FreshnessWindow() time.Duration {
	return time.Duration(c.ScanFreshnessSec) * time.Second
}

func (c Config) CRMTimeout() time.Duration {
	return time.Duration(c.CRMTimeoutMs) * time.Millisecond
}

func (c Config) CRMRetryBackoff() time.Duration {
	return time.Duration(c.CRMRetryBackoffMs) * time.Millisecond
}

func (c Config) ListenerInterval() time.Duration {
	return time.Duration(c.ListenerIntervalSec) * time.Second
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
