package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 5 * time.Minute

type PasswordGrantConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	TokenURL     string
	LogoutURL    string
	Scopes       []string
	RenewBefore  time.Duration
	HTTPClient   *http.Client
	Logger       glog.Logger
}

// PasswordGrantConfigFromCore maps the auth config section.
func PasswordGrantConfigFromCore(cfg core.AuthConfig) PasswordGrantConfig {
	return PasswordGrantConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Username:     cfg.Username,
		Password:     cfg.Password,
		TokenURL:     cfg.TokenURL,
		LogoutURL:    cfg.LogoutURL,
		Scopes:       cfg.Scopes,
		RenewBefore:  cfg.RenewBefore,
	}
}

// PasswordGrant logs a user in with the resource owner password grant,
// authenticating the client with HTTP basic auth.
type PasswordGrant struct {
	config PasswordGrantConfig
	oauth  *oauth2.Config
	client *http.Client
	logger glog.Logger
}

func NewPasswordGrant(cfg PasswordGrantConfig) *PasswordGrant {
	scopes := normalizeValues(cfg.Scopes)
	if len(scopes) == 0 {
		scopes = []string{core.DefaultScope}
	}
	renewBefore := cfg.RenewBefore
	if renewBefore <= 0 {
		renewBefore = core.DefaultTokenRenewBefore
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultAuthTimeout}
	}

	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.LogoutURL = strings.TrimSpace(cfg.LogoutURL)
	cfg.Scopes = scopes
	cfg.RenewBefore = renewBefore
	cfg.HTTPClient = client

	return &PasswordGrant{
		config: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
		logger: glog.Ensure(cfg.Logger),
	}
}

func (g *PasswordGrant) validate() error {
	switch {
	case g == nil:
		return authError("auth: password grant is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	case g.config.ClientID == "":
		return authError("auth: client_id is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	case g.config.TokenURL == "":
		return authError("auth: token_url is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	case g.config.Username == "" || g.config.Password == "":
		return authError("auth: username and password are required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	return nil
}

// Login exchanges the configured credentials for a token and returns a
// session that refreshes it on demand.
func (g *PasswordGrant) Login(ctx context.Context) (*Session, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	token, err := g.exchange(ctx)
	if err != nil {
		return nil, err
	}
	g.logger.Info("certidigital login succeeded", "username", g.config.Username, "expires_at", token.Expiry)
	return newSession(g, token), nil
}

func (g *PasswordGrant) exchange(ctx context.Context) (*oauth2.Token, error) {
	token, err := g.oauth.PasswordCredentialsToken(g.clientContext(ctx), g.config.Username, g.config.Password)
	if err != nil {
		return nil, tokenError(err, "auth: obtain token")
	}
	return token, nil
}

func (g *PasswordGrant) clientContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.client)
}

// Logout revokes the session's refresh token. The logout endpoint takes the
// client credentials and the token as query parameters.
func (g *PasswordGrant) Logout(ctx context.Context, session *Session) (int, error) {
	if g == nil || g.config.LogoutURL == "" {
		return 0, authError("auth: logout_url is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if session == nil {
		return 0, authError("auth: session is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint, err := url.Parse(g.config.LogoutURL)
	if err != nil {
		return 0, authError(fmt.Sprintf("auth: logout_url %q is invalid", g.config.LogoutURL), goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	query := endpoint.Query()
	query.Set("client_id", g.config.ClientID)
	query.Set("client_secret", g.config.ClientSecret)
	query.Set("refresh_token", session.RefreshToken())
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryBadInput, "auth: build logout request")
	}
	res, err := g.client.Do(req)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryExternal, "auth: logout request failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ServiceErrorExternalFailure)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res.StatusCode, authError(
			fmt.Sprintf("auth: logout returned status %d", res.StatusCode),
			core.CategoryForHTTPStatus(res.StatusCode),
			res.StatusCode,
			map[string]any{"status_code": res.StatusCode},
		)
	}
	session.clear()
	g.logger.Info("certidigital logout succeeded", "username", g.config.Username, "status_code", res.StatusCode)
	return res.StatusCode, nil
}

// Session holds the current token and implements core.TokenSource.
type Session struct {
	grant  *PasswordGrant
	mu     sync.Mutex
	token  *oauth2.Token
	source oauth2.TokenSource
}

func newSession(grant *PasswordGrant, token *oauth2.Token) *Session {
	session := &Session{grant: grant}
	session.reset(token)
	return session
}

func (s *Session) reset(token *oauth2.Token) {
	s.token = token
	refresher := &refreshSource{grant: s.grant, refreshToken: token.RefreshToken}
	s.source = oauth2.ReuseTokenSourceWithExpiry(token, refresher, s.grant.config.RenewBefore)
}

// refreshSource always hits the token endpoint with the refresh grant; the
// reuse wrapper in front of it decides when that is needed.
type refreshSource struct {
	grant        *PasswordGrant
	mu           sync.Mutex
	refreshToken string
}

func (r *refreshSource) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refreshToken == "" {
		return nil, errors.New("auth: session has no refresh token")
	}
	seed := &oauth2.Token{RefreshToken: r.refreshToken}
	token, err := r.grant.oauth.TokenSource(r.grant.clientContext(context.Background()), seed).Token()
	if err != nil {
		return nil, err
	}
	if token.RefreshToken != "" {
		r.refreshToken = token.RefreshToken
	}
	return token, nil
}

// AccessToken returns a valid bearer token, refreshing it when it is about to
// expire. A failed refresh falls back to a fresh password login.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	if s == nil || s.grant == nil {
		return "", authError("auth: session is not established", goerrors.CategoryAuth, http.StatusUnauthorized, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return "", authError("auth: session is logged out", goerrors.CategoryAuth, http.StatusUnauthorized, nil)
	}
	token, err := s.source.Token()
	if err == nil {
		s.token = token
		return token.AccessToken, nil
	}

	s.grant.logger.Warn("certidigital token refresh failed, logging in again", "error", err)
	token, loginErr := s.grant.exchange(ctx)
	if loginErr != nil {
		return "", loginErr
	}
	s.reset(token)
	return token.AccessToken, nil
}

// Token returns a copy of the last token observed.
func (s *Session) Token() *oauth2.Token {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil
	}
	copied := *s.token
	return &copied
}

func (s *Session) RefreshToken() string {
	token := s.Token()
	if token == nil {
		return ""
	}
	return token.RefreshToken
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = nil
}

func tokenError(err error, message string) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		status := retrieve.Response.StatusCode
		category := core.CategoryForHTTPStatus(status)
		if status == http.StatusBadRequest {
			category = goerrors.CategoryAuth
		}
		return goerrors.Wrap(err, category, message).
			WithCode(status).
			WithTextCode(core.TextCodeForCategory(category)).
			WithMetadata(map[string]any{"error_code": retrieve.ErrorCode})
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ServiceErrorExternalFailure)
}

func authError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(core.TextCodeForCategory(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

var _ core.TokenSource = (*Session)(nil)
