package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const KindREST = "rest"

const (
	HeaderRequestID = "X-Request-ID"

	defaultRESTClientTimeout = 30 * time.Second
	errorBodyPreviewBytes    = 512
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter executes JSON and binary requests against the remote API.
// Responses outside 2xx are returned as go-errors envelopes classified by
// status code; the response is still returned for inspection.
type RESTAdapter struct {
	Client               HTTPDoer
	Tokens               core.TokenSource
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	RequestIDs           func() string
}

func NewRESTAdapter(client HTTPDoer, tokens core.TokenSource) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client: client,
		Tokens: tokens,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
		MaxResponseBodyBytes: core.DefaultMaxResponseBytes,
		RequestIDs:           uuid.NewString,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return core.TransportResponse{}, transportError(
			"transport: request url is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST},
		)
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "url": rawURL},
		)
	}

	query := parsedURL.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	parsedURL.RawQuery = query.Encode()

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var body io.Reader = bytes.NewReader(req.Body)
	if req.BodyReader != nil {
		body = req.BodyReader
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), body)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "method": method, "url": parsedURL.String()},
		)
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if len(req.Body) > 0 && req.BodyReader == nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" && a.RequestIDs != nil {
		requestID = a.RequestIDs()
	}
	if requestID != "" {
		httpReq.Header.Set(HeaderRequestID, requestID)
	}

	if a.Tokens != nil && httpReq.Header.Get("Authorization") == "" {
		token, err := a.Tokens.AccessToken(requestCtx)
		if err != nil {
			return core.TransportResponse{}, transportWrapError(
				err,
				goerrors.CategoryAuth,
				"transport: resolve access token",
				http.StatusUnauthorized,
				map[string]any{"adapter": KindREST, "request_id": requestID},
			)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	startedAt := time.Now().UTC()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "method": method, "url": parsedURL.String(), "request_id": requestID},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	resBody, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": httpRes.StatusCode, "request_id": requestID},
		)
	}
	if int64(len(resBody)) > maxBodyBytes {
		return core.TransportResponse{}, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{
				"adapter":          KindREST,
				"status_code":      httpRes.StatusCode,
				"response_limit_b": maxBodyBytes,
			},
		)
	}

	response := core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       resBody,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
			"request_id":  requestID,
		},
	}
	if err := StatusError(method, parsedURL.Path, response); err != nil {
		return response, err
	}
	return response, nil
}

// StatusError converts a non-2xx response into a categorized error.
func StatusError(method string, path string, res core.TransportResponse) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	category := core.CategoryForHTTPStatus(res.StatusCode)
	metadata := map[string]any{
		"adapter":     KindREST,
		"method":      method,
		"path":        path,
		"status_code": res.StatusCode,
	}
	if preview := bodyPreview(res.Body); preview != "" {
		metadata["response_body"] = preview
	}
	if requestID, ok := res.Metadata["request_id"]; ok {
		metadata["request_id"] = requestID
	}
	return transportError(
		fmt.Sprintf("transport: %s %s returned status %d", method, path, res.StatusCode),
		category,
		res.StatusCode,
		metadata,
	)
}

func bodyPreview(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= errorBodyPreviewBytes {
		return text
	}
	cut := errorBodyPreviewBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return core.DefaultMaxResponseBytes
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
