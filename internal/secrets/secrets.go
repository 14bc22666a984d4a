// Package secrets looks up credentials by name from the environment or AWS
// Secrets Manager and folds them into the loaded configuration.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"mailcrm/internal/config"
)

var ErrNotFound = errors.New("secret not found")

type Source interface {
	Get(ctx context.Context, name string) (string, error)
}

// EnvSource maps a secret name to an environment variable:
// "pipedrive-token" is read from PIPEDRIVE_TOKEN.
type EnvSource struct{}

func (EnvSource) Get(_ context.Context, name string) (string, error) {
	key := EnvKey(name)
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s (env %s)", ErrNotFound, name, key)
	}
	return value, nil
}

func EnvKey(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(strings.TrimSpace(name)))
}

func NewSource(ctx context.Context, cfg config.Config) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SecretsProvider)) {
	case "", "env":
		return EnvSource{}, nil
	case "aws":
		return NewAWSSource(ctx)
	default:
		return nil, fmt.Errorf("unsupported secrets provider: %s", cfg.SecretsProvider)
	}
}

// gmailCredentials is the authorized-user JSON stored under the Gmail secret.
type gmailCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// Resolve fills empty credential fields of cfg from src. Secrets that do not
// exist are left empty for the consumer's own validation to report.
func Resolve(ctx context.Context, src Source, cfg *config.Config) error {
	if cfg.CRMDomain == "" {
		value, err := lookup(ctx, src, cfg.SecretCRMDomain)
		if err != nil {
			return err
		}
		cfg.CRMDomain = strings.TrimSpace(value)
	}
	if cfg.CRMAPIToken == "" {
		value, err := lookup(ctx, src, cfg.SecretCRMToken)
		if err != nil {
			return err
		}
		cfg.CRMAPIToken = strings.TrimSpace(value)
	}

	if cfg.GmailClientID != "" && cfg.GmailClientSecret != "" && cfg.GmailRefreshToken != "" {
		return nil
	}
	raw, err := lookup(ctx, src, cfg.SecretGmailCredential)
	if err != nil || raw == "" {
		return err
	}
	var creds gmailCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return fmt.Errorf("decode secret %s: %w", cfg.SecretGmailCredential, err)
	}
	if cfg.GmailClientID == "" {
		cfg.GmailClientID = creds.ClientID
	}
	if cfg.GmailClientSecret == "" {
		cfg.GmailClientSecret = creds.ClientSecret
	}
	if cfg.GmailRefreshToken == "" {
		cfg.GmailRefreshToken = creds.RefreshToken
	}
	return nil
}

func lookup(ctx context.Context, src Source, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	value, err := src.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}
