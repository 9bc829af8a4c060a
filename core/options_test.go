package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), "", Config{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != DefaultServiceName {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Issuance.SealPollInterval != DefaultSealPollInterval {
		t.Fatalf("expected default poll interval, got %s", cfg.Issuance.SealPollInterval)
	}
	if cfg.API.Locale != DefaultLocale {
		t.Fatalf("expected default locale, got %q", cfg.API.Locale)
	}
}

func TestLoadConfig_YAMLFileAndRuntimePrecedence(t *testing.T) {
	path := writeConfigFile(t, "certidigital.yaml", `
auth:
  client_id: certidigital-client
  token_url: https://idp.example.test/token
  renew_before: 45s
api:
  base_url: https://api.example.test
  timeout: 12
issuance:
  issuing_center_id: 1001
  seal_poll_interval: 2s
  seal_poll_max_attempts: 30
`)

	cfg, err := LoadConfig(context.Background(), path, Config{
		Issuance: IssuanceConfig{SealPollMaxAttempts: 5},
	})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.ClientID != "certidigital-client" {
		t.Fatalf("expected client id from file, got %q", cfg.Auth.ClientID)
	}
	if cfg.Auth.RenewBefore != 45*time.Second {
		t.Fatalf("expected renew_before 45s, got %s", cfg.Auth.RenewBefore)
	}
	if cfg.API.Timeout != 12*time.Second {
		t.Fatalf("expected numeric timeout in seconds, got %s", cfg.API.Timeout)
	}
	if cfg.Issuance.IssuingCenterID != 1001 {
		t.Fatalf("expected issuing center id, got %d", cfg.Issuance.IssuingCenterID)
	}
	if cfg.Issuance.SealPollInterval != 2*time.Second {
		t.Fatalf("expected poll interval from file, got %s", cfg.Issuance.SealPollInterval)
	}
	if cfg.Issuance.SealPollMaxAttempts != 5 {
		t.Fatalf("expected runtime override to win, got %d", cfg.Issuance.SealPollMaxAttempts)
	}
	if cfg.API.Locale != DefaultLocale {
		t.Fatalf("expected untouched default locale, got %q", cfg.API.Locale)
	}
}

func TestLoadConfig_TOMLFile(t *testing.T) {
	path := writeConfigFile(t, "certidigital.toml", `
service_name = "certidigital-staging"

[api]
base_url = "https://staging.example.test"

[fixtures]
ledger_driver = "sqlite3"
ledger_dsn = "file:ledger.db"
`)

	cfg, err := LoadConfig(context.Background(), path, Config{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "certidigital-staging" {
		t.Fatalf("expected service name from toml, got %q", cfg.ServiceName)
	}
	if cfg.Fixtures.LedgerDriver != LedgerDriverSQLite {
		t.Fatalf("expected sqlite ledger, got %q", cfg.Fixtures.LedgerDriver)
	}
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	path := writeConfigFile(t, "certidigital.json", `{"fixtures":{"ledger_driver":"postgres"}}`)
	if _, err := LoadConfig(context.Background(), path, Config{}); err == nil {
		t.Fatalf("expected validation error for postgres ledger without dsn")
	}

	path = writeConfigFile(t, "attempts.json", `{"issuance":{"seal_poll_max_attempts":-1}}`)
	if _, err := LoadConfig(context.Background(), path, Config{}); err == nil {
		t.Fatalf("expected validation error for negative seal poll attempts")
	}

	path = writeConfigFile(t, "broken.yaml", "issuance:\n  seal_poll_interval: soon\n")
	if _, err := LoadConfig(context.Background(), path, Config{}); err == nil {
		t.Fatalf("expected duration parse error")
	}

	if _, err := LoadConfig(context.Background(), filepath.Join(t.TempDir(), "config.ini"), Config{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestAPIConfigEndpointURL(t *testing.T) {
	api := APIConfig{
		BaseURL: "https://api.example.test/",
		Endpoints: map[string]string{
			"emissionsseal":       "/api/v1/emissions/seal",
			EndpointEmissionsSend: "https://mail.example.test/send",
		},
	}

	got, err := api.EndpointURL(EndpointEmissionsSeal)
	if err != nil {
		t.Fatalf("resolve relative endpoint: %v", err)
	}
	if got != "https://api.example.test/api/v1/emissions/seal" {
		t.Fatalf("unexpected relative resolution %q", got)
	}

	got, err = api.EndpointURL(EndpointEmissionsSend)
	if err != nil || got != "https://mail.example.test/send" {
		t.Fatalf("expected absolute endpoint untouched, got %q (%v)", got, err)
	}

	if _, err := api.EndpointURL("missing"); err == nil {
		t.Fatalf("expected error for unknown endpoint")
	}
	if _, err := (APIConfig{Endpoints: DefaultEndpoints()}).EndpointURL(EndpointEmissionsSeal); err == nil {
		t.Fatalf("expected error when base url is missing")
	}
}
