package certidigital

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-certidigital/adapters/gojob"
	"github.com/goliatone/go-certidigital/adapters/gologger"
	"github.com/goliatone/go-certidigital/auth"
	"github.com/goliatone/go-certidigital/client"
	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/ratelimit"
	sqlstore "github.com/goliatone/go-certidigital/store/sql"
	"github.com/goliatone/go-certidigital/workflow"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig resolves defaults < config file < overrides.
func LoadConfig(ctx context.Context, path string, overrides Config) (Config, error) {
	return core.LoadConfig(ctx, path, overrides)
}

type Option func(*setupOptions)

type setupOptions struct {
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	metrics        core.MetricsRecorder
	tokens         core.TokenSource
	transport      core.TransportAdapter
	httpClient     *http.Client
	cacheService   repositorycache.CacheService
	persistence    *persistence.Client
	ledger         fixtures.LedgerStore
	checkpoints    workflow.CheckpointStore
	rateLimits     ratelimit.StateStore
	tracker        []workflow.IssuerOption
}

func WithLogger(logger glog.Logger) Option {
	return func(o *setupOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *setupOptions) {
		o.loggerProvider = provider
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *setupOptions) {
		o.metrics = metrics
	}
}

// WithTokenSource skips the password grant login.
func WithTokenSource(tokens core.TokenSource) Option {
	return func(o *setupOptions) {
		o.tokens = tokens
	}
}

func WithTransport(adapter core.TransportAdapter) Option {
	return func(o *setupOptions) {
		o.transport = adapter
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *setupOptions) {
		o.httpClient = httpClient
	}
}

func WithCacheService(cacheService repositorycache.CacheService) Option {
	return func(o *setupOptions) {
		o.cacheService = cacheService
	}
}

// WithPersistenceClient uses an already migrated database for the ledger,
// checkpoints and rate-limit state, regardless of fixtures.ledger_driver.
func WithPersistenceClient(client *persistence.Client) Option {
	return func(o *setupOptions) {
		o.persistence = client
	}
}

func WithLedgerStore(store fixtures.LedgerStore) Option {
	return func(o *setupOptions) {
		o.ledger = store
	}
}

func WithCheckpointStore(store workflow.CheckpointStore) Option {
	return func(o *setupOptions) {
		o.checkpoints = store
	}
}

func WithRateLimitStore(store ratelimit.StateStore) Option {
	return func(o *setupOptions) {
		o.rateLimits = store
	}
}

func WithIssuerOptions(opts ...workflow.IssuerOption) Option {
	return func(o *setupOptions) {
		o.tracker = append(o.tracker, opts...)
	}
}

// Service is a configured client with its build and issuance workflows.
type Service struct {
	config      Config
	logger      glog.Logger
	loggers     glog.LoggerProvider
	client      *client.Client
	directory   *client.CachedDirectory
	builder     *workflow.Builder
	issuer      *workflow.Issuer
	ledger      fixtures.LedgerStore
	checkpoints workflow.CheckpointStore
	facade      *Facade
	session     *sessionTokens
	persistence *persistence.Client
	ownsDB      bool
}

// Setup validates cfg and wires the client, stores and workflows. With a
// sqlite3 or postgres ledger driver the database is opened and migrated.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	options := setupOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return nil, core.MapError(err)
	}

	loggers, logger := gologger.Resolve(cfg.ServiceName, options.loggerProvider, options.logger)
	logger = glog.Ensure(logger)
	if options.metrics == nil {
		options.metrics = core.NopMetricsRecorder{}
	}
	if options.cacheService == nil {
		cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("certidigital: build cache service: %w", err)
		}
		options.cacheService = cacheService
	}

	svc := &Service{config: cfg, logger: logger, loggers: loggers}
	if err := svc.setupStores(ctx, &options); err != nil {
		return nil, err
	}

	tokens := options.tokens
	if tokens == nil {
		grantConfig := auth.PasswordGrantConfigFromCore(cfg.Auth)
		grantConfig.HTTPClient = options.httpClient
		grantConfig.Logger = logger
		svc.session = &sessionTokens{
			grant:  auth.NewPasswordGrant(grantConfig),
			logout: strings.TrimSpace(cfg.Auth.LogoutURL) != "",
		}
		tokens = svc.session
	}

	svc.client = client.New(cfg.API, tokens,
		client.WithLogger(logger),
		client.WithMetrics(options.metrics),
		client.WithIssuance(cfg.Issuance),
		client.WithTransport(options.transport),
		client.WithHTTPClient(options.httpClient),
		client.WithRateLimitStore(options.rateLimits),
	)
	directory, err := client.NewCachedDirectory(svc.client, options.cacheService, directoryScope(cfg))
	if err != nil {
		_ = svc.Close(ctx)
		return nil, err
	}
	svc.directory = directory

	dir := fixtures.NewDir(cfg.Fixtures.DataDir)
	svc.builder = workflow.NewBuilder(svc.client, dir, svc.ledger, cfg.Issuance, workflow.WithBuilderLogger(logger))
	issuerOpts := append([]workflow.IssuerOption{
		workflow.WithCheckpoints(svc.checkpoints),
		workflow.WithIssuerLogger(logger),
	}, options.tracker...)
	svc.issuer = workflow.NewIssuer(svc.client, dir, cfg.Issuance, issuerOpts...)

	svc.facade, err = NewFacade(svc.builder, svc.issuer, svc.ledger, svc.checkpoints)
	if err != nil {
		_ = svc.Close(ctx)
		return nil, err
	}
	logger.Info("certidigital service ready",
		"ledger_driver", ledgerDriver(cfg, options),
		"issuing_center_id", cfg.Issuance.IssuingCenterID,
	)
	return svc, nil
}

func (s *Service) setupStores(ctx context.Context, options *setupOptions) error {
	dbClient := options.persistence
	driver := strings.TrimSpace(s.config.Fixtures.LedgerDriver)
	if dbClient == nil && (driver == core.LedgerDriverSQLite || driver == core.LedgerDriverPostgres) {
		opened, err := sqlstore.Open(ctx, sqlstore.Config{Driver: driver, DSN: s.config.Fixtures.LedgerDSN})
		if err != nil {
			return err
		}
		dbClient = opened
		s.ownsDB = true
	}

	if dbClient != nil {
		s.persistence = dbClient
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(dbClient)
		if err != nil {
			_ = s.Close(ctx)
			return err
		}
		if options.ledger == nil {
			options.ledger = factory.LedgerStore()
		}
		if options.checkpoints == nil {
			options.checkpoints = factory.CheckpointStore()
		}
		if options.rateLimits == nil {
			cached, err := sqlstore.NewCachedRateLimitStateStore(factory.RateLimitStateStore(), options.cacheService)
			if err != nil {
				_ = s.Close(ctx)
				return err
			}
			options.rateLimits = cached
		}
	}

	if options.ledger == nil {
		options.ledger = fixtures.NewFileLedger(s.config.Fixtures.DataDir)
	}
	if options.checkpoints == nil {
		options.checkpoints = workflow.NewMemoryCheckpointStore()
	}
	s.ledger = options.ledger
	s.checkpoints = options.checkpoints
	return nil
}

func directoryScope(cfg Config) string {
	return strings.TrimSpace(cfg.API.BaseURL) + "|" + strings.TrimSpace(cfg.Auth.Username)
}

func ledgerDriver(cfg Config, options setupOptions) string {
	if options.persistence != nil {
		return "persistence"
	}
	if driver := strings.TrimSpace(cfg.Fixtures.LedgerDriver); driver != "" {
		return driver
	}
	return core.LedgerDriverFile
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Client() *client.Client {
	if s == nil {
		return nil
	}
	return s.client
}

func (s *Service) Directory() *client.CachedDirectory {
	if s == nil {
		return nil
	}
	return s.directory
}

func (s *Service) Builder() *workflow.Builder {
	if s == nil {
		return nil
	}
	return s.builder
}

func (s *Service) Issuer() *workflow.Issuer {
	if s == nil {
		return nil
	}
	return s.issuer
}

func (s *Service) Facade() *Facade {
	if s == nil {
		return nil
	}
	return s.facade
}

// PollWorker builds a go-job worker that resumes queued emissions blocks.
func (s *Service) PollWorker(dequeuer queue.Dequeuer, opts ...gojob.PollWorkerOption) *gojob.PollWorker {
	jobLogger := gologger.ForPollWorker(s.loggers, s.logger)
	defaults := []gojob.PollWorkerOption{
		gojob.WithLogger(jobLogger),
		gojob.WithHook(gojob.LoggingHook{Logger: jobLogger}),
	}
	return gojob.NewPollWorker(dequeuer, s.issuer, append(defaults, opts...)...)
}

// Close ends the API session and releases a database opened by Setup.
func (s *Service) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.session != nil {
		if err := s.session.end(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.ownsDB && s.persistence != nil {
		if err := s.persistence.Close(); err != nil {
			errs = append(errs, err)
		}
		s.persistence = nil
	}
	return errors.Join(errs...)
}

// sessionTokens logs in on first use and then defers to the session's
// refreshing token source.
type sessionTokens struct {
	grant  *auth.PasswordGrant
	logout bool

	mu      sync.Mutex
	session *auth.Session
}

func (t *sessionTokens) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.session == nil {
		session, err := t.grant.Login(ctx)
		if err != nil {
			t.mu.Unlock()
			return "", err
		}
		t.session = session
	}
	session := t.session
	t.mu.Unlock()
	return session.AccessToken(ctx)
}

// end logs the session out when a logout url is configured.
func (t *sessionTokens) end(ctx context.Context) error {
	t.mu.Lock()
	session := t.session
	t.session = nil
	t.mu.Unlock()
	if session == nil || !t.logout {
		return nil
	}
	_, err := t.grant.Logout(ctx, session)
	return err
}

var _ core.TokenSource = (*sessionTokens)(nil)
