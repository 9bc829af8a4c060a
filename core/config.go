package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultServiceName         = "certidigital"
	DefaultLocale              = "es"
	DefaultScope               = "openid"
	DefaultAPITimeout          = 30 * time.Second
	DefaultUploadTimeout       = time.Hour
	DefaultTokenRenewBefore    = 30 * time.Second
	DefaultSealPollInterval    = 10 * time.Second
	DefaultSealPollMaxAttempts = 180
	DefaultRecipientsSkipRows  = 4
	DefaultRecipientsStartRow  = 4
	DefaultMaxResponseBytes    = int64(50 << 20)

	LedgerDriverFile     = "file"
	LedgerDriverSQLite   = "sqlite3"
	LedgerDriverPostgres = "postgres"
)

// AuthConfig holds the password-grant credentials for the token endpoint.
type AuthConfig struct {
	ClientID     string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string        `koanf:"client_secret" mapstructure:"client_secret"`
	Username     string        `koanf:"username" mapstructure:"username"`
	Password     string        `koanf:"password" mapstructure:"password"`
	TokenURL     string        `koanf:"token_url" mapstructure:"token_url"`
	LogoutURL    string        `koanf:"logout_url" mapstructure:"logout_url"`
	Scopes       []string      `koanf:"scopes" mapstructure:"scopes"`
	RenewBefore  time.Duration `koanf:"renew_before" mapstructure:"renew_before"`
}

// APIConfig describes the remote API. Endpoints maps an api id (for example
// "createActivity") to an absolute URL or a path relative to BaseURL.
type APIConfig struct {
	BaseURL          string            `koanf:"base_url" mapstructure:"base_url"`
	Endpoints        map[string]string `koanf:"endpoints" mapstructure:"endpoints"`
	Timeout          time.Duration     `koanf:"timeout" mapstructure:"timeout"`
	UploadTimeout    time.Duration     `koanf:"upload_timeout" mapstructure:"upload_timeout"`
	RateLimit        float64           `koanf:"rate_limit" mapstructure:"rate_limit"`
	Burst            int               `koanf:"burst" mapstructure:"burst"`
	Locale           string            `koanf:"locale" mapstructure:"locale"`
	MaxResponseBytes int64             `koanf:"max_response_bytes" mapstructure:"max_response_bytes"`
}

type IssuanceConfig struct {
	IssuingCenterID        int64         `koanf:"issuing_center_id" mapstructure:"issuing_center_id"`
	AwardingOrganizationID int64         `koanf:"awarding_organization_id" mapstructure:"awarding_organization_id"`
	DiplomaID              int64         `koanf:"diploma_id" mapstructure:"diploma_id"`
	TemplateBody           string        `koanf:"template_body" mapstructure:"template_body"`
	RecipientsSkipRows     int           `koanf:"recipients_skip_rows" mapstructure:"recipients_skip_rows"`
	RecipientsStartRow     int           `koanf:"recipients_start_row" mapstructure:"recipients_start_row"`
	SealPollInterval       time.Duration `koanf:"seal_poll_interval" mapstructure:"seal_poll_interval"`
	SealPollMaxAttempts    int           `koanf:"seal_poll_max_attempts" mapstructure:"seal_poll_max_attempts"`
	SendEmail              bool          `koanf:"send_email" mapstructure:"send_email"`
	SendEUWallet           bool          `koanf:"send_eu_wallet" mapstructure:"send_eu_wallet"`
}

type FixturesConfig struct {
	DataDir      string `koanf:"data_dir" mapstructure:"data_dir"`
	LedgerDriver string `koanf:"ledger_driver" mapstructure:"ledger_driver"`
	LedgerDSN    string `koanf:"ledger_dsn" mapstructure:"ledger_dsn"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Auth        AuthConfig     `koanf:"auth" mapstructure:"auth"`
	API         APIConfig      `koanf:"api" mapstructure:"api"`
	Issuance    IssuanceConfig `koanf:"issuance" mapstructure:"issuance"`
	Fixtures    FixturesConfig `koanf:"fixtures" mapstructure:"fixtures"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: DefaultServiceName,
		Auth: AuthConfig{
			Scopes:      []string{DefaultScope},
			RenewBefore: DefaultTokenRenewBefore,
		},
		API: APIConfig{
			Endpoints:        DefaultEndpoints(),
			Timeout:          DefaultAPITimeout,
			UploadTimeout:    DefaultUploadTimeout,
			Locale:           DefaultLocale,
			MaxResponseBytes: DefaultMaxResponseBytes,
		},
		Issuance: IssuanceConfig{
			RecipientsSkipRows:  DefaultRecipientsSkipRows,
			RecipientsStartRow:  DefaultRecipientsStartRow,
			SealPollInterval:    DefaultSealPollInterval,
			SealPollMaxAttempts: DefaultSealPollMaxAttempts,
		},
		Fixtures: FixturesConfig{
			DataDir:      "data",
			LedgerDriver: LedgerDriverFile,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if base := strings.TrimSpace(c.API.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: api.base_url %q is invalid", base)
		}
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("core: api.rate_limit must not be negative")
	}
	if c.Issuance.RecipientsSkipRows < 0 || c.Issuance.RecipientsStartRow < 0 {
		return fmt.Errorf("core: issuance recipient rows must not be negative")
	}
	if c.Issuance.SealPollInterval < 0 {
		return fmt.Errorf("core: issuance.seal_poll_interval must not be negative")
	}
	if c.Issuance.SealPollMaxAttempts < 0 {
		return fmt.Errorf("core: issuance.seal_poll_max_attempts must not be negative")
	}
	switch strings.TrimSpace(c.Fixtures.LedgerDriver) {
	case "", LedgerDriverFile:
	case LedgerDriverSQLite, LedgerDriverPostgres:
		if strings.TrimSpace(c.Fixtures.LedgerDSN) == "" {
			return fmt.Errorf("core: fixtures.ledger_dsn is required for driver %q", c.Fixtures.LedgerDriver)
		}
	default:
		return fmt.Errorf("core: fixtures.ledger_driver %q is invalid", c.Fixtures.LedgerDriver)
	}
	return nil
}

// EndpointURL resolves an api id against the endpoint catalog.
func (c APIConfig) EndpointURL(apiID string) (string, error) {
	apiID = strings.TrimSpace(apiID)
	raw, ok := c.Endpoints[apiID]
	if !ok {
		raw, ok = lookupEndpointFold(c.Endpoints, apiID)
	}
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", fmt.Errorf("core: endpoint %q is not configured", apiID)
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("core: endpoint %q is relative and api.base_url is not configured", apiID)
	}
	return base + "/" + strings.TrimLeft(raw, "/"), nil
}

// config decoders lower-case map keys, so the camelCase api ids are matched
// case-insensitively.
func lookupEndpointFold(endpoints map[string]string, apiID string) (string, bool) {
	for key, value := range endpoints {
		if strings.EqualFold(key, apiID) {
			return value, true
		}
	}
	return "", false
}
