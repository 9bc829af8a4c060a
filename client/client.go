package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/ratelimit"
	"github.com/goliatone/go-certidigital/transport"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	acceptJSON        = "application/json"
	acceptOctetStream = "application/octet-stream"
)

// Client calls the credentialing API. Every request carries the session's
// bearer token through the transport adapter.
type Client struct {
	api      core.APIConfig
	issuance core.IssuanceConfig
	adapter  core.TransportAdapter
	observer *core.Observer
	logger   glog.Logger
	limits   ratelimit.StateStore
	httpc    *http.Client
}

type Option func(*Client)

// WithTransport replaces the default rate limited REST adapter.
func WithTransport(adapter core.TransportAdapter) Option {
	return func(c *Client) {
		if adapter != nil {
			c.adapter = adapter
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(c *Client) {
		c.observer = core.NewObserver(c.observer.Prefix, c.observer.Logger, metrics)
	}
}

// WithRateLimitStore keeps throttle state in store instead of process
// memory, so separate runs share the remote quota.
func WithRateLimitStore(store ratelimit.StateStore) Option {
	return func(c *Client) {
		c.limits = store
	}
}

// WithHTTPClient sets the client used by the default adapter.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpClient
	}
}

func WithIssuance(cfg core.IssuanceConfig) Option {
	return func(c *Client) {
		c.issuance = cfg
	}
}

// New builds a client over the configured endpoint catalog. Requests are
// paced by api.rate_limit and back off on 429 responses.
func New(api core.APIConfig, tokens core.TokenSource, opts ...Option) *Client {
	c := &Client{
		api:      api,
		observer: core.NewObserver(core.DefaultServiceName, nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = glog.Ensure(c.logger)
	c.observer.Logger = c.logger
	if c.adapter == nil {
		if c.limits == nil {
			c.limits = ratelimit.NewMemoryStateStore()
		}
		if c.httpc == nil {
			c.httpc = &http.Client{}
		}
		policy := ratelimit.NewAdaptivePolicy(c.limits, api.RateLimit, api.Burst)
		adapter := transport.NewRESTAdapter(transport.NewRateLimitedDoer(c.httpc, policy), tokens)
		if api.MaxResponseBytes > 0 {
			adapter.MaxResponseBodyBytes = api.MaxResponseBytes
		}
		c.adapter = adapter
	}
	return c
}

// Issuance returns the issuance defaults the client was built with.
func (c *Client) Issuance() core.IssuanceConfig {
	return c.issuance
}

type call struct {
	operation string
	apiID     string
	suffix    string
	method    string
	query     map[string]string
	headers   map[string]string
	body      any
	reader    io.Reader
	timeout   time.Duration
	fields    map[string]any
}

func (c *Client) endpoint(apiID string, suffix string) (string, error) {
	base, err := c.api.EndpointURL(apiID)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "client: resolve endpoint").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput).
			WithMetadata(map[string]any{"api_id": apiID})
	}
	if suffix == "" {
		return base, nil
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(suffix, "/"), nil
}

func (c *Client) timeout() time.Duration {
	if c.api.Timeout > 0 {
		return c.api.Timeout
	}
	return core.DefaultAPITimeout
}

func (c *Client) uploadTimeout() time.Duration {
	if c.api.UploadTimeout > 0 {
		return c.api.UploadTimeout
	}
	return core.DefaultUploadTimeout
}

func (c *Client) locale() string {
	if locale := strings.TrimSpace(c.api.Locale); locale != "" {
		return locale
	}
	return core.DefaultLocale
}

func (c *Client) do(ctx context.Context, in call) (res core.TransportResponse, err error) {
	if c == nil || c.adapter == nil {
		return core.TransportResponse{}, fmt.Errorf("client: transport is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	defer func() {
		fields := map[string]any{"api_id": in.apiID, "status_code": res.StatusCode}
		for key, value := range in.fields {
			fields[key] = value
		}
		c.observer.Observe(ctx, startedAt, in.operation, err, fields)
	}()

	url, err := c.endpoint(in.apiID, in.suffix)
	if err != nil {
		return core.TransportResponse{}, err
	}
	req := core.TransportRequest{
		Method:     in.method,
		URL:        url,
		Query:      in.query,
		Headers:    in.headers,
		Timeout:    in.timeout,
		BodyReader: in.reader,
	}
	if req.Timeout <= 0 {
		req.Timeout = c.timeout()
	}
	if in.body != nil {
		switch body := in.body.(type) {
		case json.RawMessage:
			req.Body = body
		case []byte:
			req.Body = body
		default:
			req.Body, err = json.Marshal(body)
			if err != nil {
				return core.TransportResponse{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "client: encode request body").
					WithCode(http.StatusBadRequest).
					WithTextCode(core.ServiceErrorBadInput)
			}
		}
	}
	return c.adapter.Do(ctx, req)
}

func decodeBody(res core.TransportResponse, target any, operation string) error {
	if err := json.Unmarshal(res.Body, target); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "client: decode "+operation+" response").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ServiceErrorExternalFailure).
			WithMetadata(map[string]any{"status_code": res.StatusCode})
	}
	return nil
}

func centerQuery(centerID int64) map[string]string {
	return map[string]string{"issuingCenterId": formatID(centerID)}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// UserInfo returns the profile of the logged in user.
func (c *Client) UserInfo(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "user_info", core.EndpointUserInfo)
}

// IssuingCenters lists the issuing centers the user can act for.
func (c *Client) IssuingCenters(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "issuing_centers", core.EndpointIssuingCenters)
}

// Organizations lists the awarding organizations visible to the user.
func (c *Client) Organizations(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "organizations", core.EndpointOrganizations)
}

func (c *Client) getRaw(ctx context.Context, operation string, apiID string) (json.RawMessage, error) {
	res, err := c.do(ctx, call{operation: operation, apiID: apiID, method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(append([]byte(nil), res.Body...)), nil
}
