package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

// NewStaticConfigLoader serves an in-memory raw configuration.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: copyAnyMap(values)}
}

// FileConfigLoader reads a raw configuration from a .json, .yaml/.yml or
// .toml file. Duration values may be written as Go duration strings ("10s")
// or as a number of seconds.
type FileConfigLoader struct {
	Path string
}

func NewFileConfigLoader(path string) *FileConfigLoader {
	return &FileConfigLoader{Path: strings.TrimSpace(path)}
}

func (l *FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("core: read config file %q: %w", l.Path, err)
	}
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(l.Path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("core: unsupported config file extension %q", filepath.Ext(l.Path))
	}
	if err != nil {
		return nil, fmt.Errorf("core: decode config file %q: %w", l.Path, err)
	}
	if err := normalizeDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

var durationKeys = map[string]struct{}{
	"renew_before":       {},
	"timeout":            {},
	"upload_timeout":     {},
	"seal_poll_interval": {},
}

func normalizeDurations(raw map[string]any) error {
	for key, value := range raw {
		if nested, ok := value.(map[string]any); ok {
			if err := normalizeDurations(nested); err != nil {
				return err
			}
			continue
		}
		if _, ok := durationKeys[strings.ToLower(key)]; !ok {
			continue
		}
		switch typed := value.(type) {
		case string:
			parsed, err := time.ParseDuration(strings.TrimSpace(typed))
			if err != nil {
				return fmt.Errorf("core: config key %q: %w", key, err)
			}
			raw[key] = parsed
		case int:
			raw[key] = time.Duration(typed) * time.Second
		case int64:
			raw[key] = time.Duration(typed) * time.Second
		case float64:
			raw[key] = time.Duration(typed * float64(time.Second))
		}
	}
	return nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults < config file < runtime overrides. An empty
// path skips the file layer.
func LoadConfig(ctx context.Context, path string, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	loaded, err := NewCfgxConfigProvider(NewFileConfigLoader(path)).Load(ctx, defaults)
	if err != nil {
		return Config{}, MapError(err)
	}
	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		return Config{}, MapError(err)
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setLayerValue(layer, "service_name", strings.TrimSpace(cfg.ServiceName), includeZero)

	authLayer := map[string]any{}
	setLayerValue(authLayer, "client_id", strings.TrimSpace(cfg.Auth.ClientID), includeZero)
	setLayerValue(authLayer, "client_secret", strings.TrimSpace(cfg.Auth.ClientSecret), includeZero)
	setLayerValue(authLayer, "username", strings.TrimSpace(cfg.Auth.Username), includeZero)
	setLayerValue(authLayer, "password", cfg.Auth.Password, includeZero)
	setLayerValue(authLayer, "token_url", strings.TrimSpace(cfg.Auth.TokenURL), includeZero)
	setLayerValue(authLayer, "logout_url", strings.TrimSpace(cfg.Auth.LogoutURL), includeZero)
	if includeZero || len(cfg.Auth.Scopes) > 0 {
		authLayer["scopes"] = append([]string(nil), cfg.Auth.Scopes...)
	}
	setLayerValue(authLayer, "renew_before", cfg.Auth.RenewBefore, includeZero)
	setLayerSection(layer, "auth", authLayer)

	apiLayer := map[string]any{}
	setLayerValue(apiLayer, "base_url", strings.TrimSpace(cfg.API.BaseURL), includeZero)
	if includeZero || len(cfg.API.Endpoints) > 0 {
		endpoints := make(map[string]any, len(cfg.API.Endpoints))
		for key, value := range cfg.API.Endpoints {
			endpoints[key] = value
		}
		apiLayer["endpoints"] = endpoints
	}
	setLayerValue(apiLayer, "timeout", cfg.API.Timeout, includeZero)
	setLayerValue(apiLayer, "upload_timeout", cfg.API.UploadTimeout, includeZero)
	setLayerValue(apiLayer, "rate_limit", cfg.API.RateLimit, includeZero)
	setLayerValue(apiLayer, "burst", cfg.API.Burst, includeZero)
	setLayerValue(apiLayer, "locale", strings.TrimSpace(cfg.API.Locale), includeZero)
	setLayerValue(apiLayer, "max_response_bytes", cfg.API.MaxResponseBytes, includeZero)
	setLayerSection(layer, "api", apiLayer)

	issuanceLayer := map[string]any{}
	setLayerValue(issuanceLayer, "issuing_center_id", cfg.Issuance.IssuingCenterID, includeZero)
	setLayerValue(issuanceLayer, "awarding_organization_id", cfg.Issuance.AwardingOrganizationID, includeZero)
	setLayerValue(issuanceLayer, "diploma_id", cfg.Issuance.DiplomaID, includeZero)
	setLayerValue(issuanceLayer, "template_body", strings.TrimSpace(cfg.Issuance.TemplateBody), includeZero)
	setLayerValue(issuanceLayer, "recipients_skip_rows", cfg.Issuance.RecipientsSkipRows, includeZero)
	setLayerValue(issuanceLayer, "recipients_start_row", cfg.Issuance.RecipientsStartRow, includeZero)
	setLayerValue(issuanceLayer, "seal_poll_interval", cfg.Issuance.SealPollInterval, includeZero)
	setLayerValue(issuanceLayer, "seal_poll_max_attempts", cfg.Issuance.SealPollMaxAttempts, includeZero)
	setLayerValue(issuanceLayer, "send_email", cfg.Issuance.SendEmail, includeZero)
	setLayerValue(issuanceLayer, "send_eu_wallet", cfg.Issuance.SendEUWallet, includeZero)
	setLayerSection(layer, "issuance", issuanceLayer)

	fixturesLayer := map[string]any{}
	setLayerValue(fixturesLayer, "data_dir", strings.TrimSpace(cfg.Fixtures.DataDir), includeZero)
	setLayerValue(fixturesLayer, "ledger_driver", strings.TrimSpace(cfg.Fixtures.LedgerDriver), includeZero)
	setLayerValue(fixturesLayer, "ledger_dsn", strings.TrimSpace(cfg.Fixtures.LedgerDSN), includeZero)
	setLayerSection(layer, "fixtures", fixturesLayer)

	return layer
}

func setLayerValue[T comparable](layer map[string]any, key string, value T, includeZero bool) {
	var zero T
	if !includeZero && value == zero {
		return
	}
	layer[key] = value
}

func setLayerSection(layer map[string]any, key string, section map[string]any) {
	if len(section) == 0 {
		return
	}
	layer[key] = section
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
