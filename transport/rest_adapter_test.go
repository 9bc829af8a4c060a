package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/ratelimit"
	goerrors "github.com/goliatone/go-errors"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(context.Context) (string, error) {
	return s.token, s.err
}

func TestRESTAdapter_SendsBearerRequestIDAndQuery(t *testing.T) {
	var seen *http.Request
	var seenBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		payload, _ := io.ReadAll(r.Body)
		seenBody = string(payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"oid":12}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), staticTokens{token: "tok-1"})
	adapter.RequestIDs = func() string { return "req-1" }

	res, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: http.MethodPost,
		URL:    server.URL + "/api/v1/activities?existing=1",
		Query:  map[string]string{"issuingCenterId": "4"},
		Body:   []byte(`{"title":"x"}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != `{"oid":12}` {
		t.Fatalf("unexpected response %d %s", res.StatusCode, res.Body)
	}
	if got := seen.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Fatalf("expected bearer token, got %q", got)
	}
	if got := seen.Header.Get(HeaderRequestID); got != "req-1" {
		t.Fatalf("expected request id header, got %q", got)
	}
	if got := seen.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}
	if seen.URL.Query().Get("issuingCenterId") != "4" || seen.URL.Query().Get("existing") != "1" {
		t.Fatalf("expected merged query, got %q", seen.URL.RawQuery)
	}
	if seenBody != `{"title":"x"}` {
		t.Fatalf("unexpected body %q", seenBody)
	}
	if res.Metadata["request_id"] != "req-1" {
		t.Fatalf("expected request id metadata")
	}
}

func TestRESTAdapter_StatusCodesMapToCategories(t *testing.T) {
	cases := map[int]goerrors.Category{
		http.StatusNotFound:           goerrors.CategoryNotFound,
		http.StatusUnauthorized:       goerrors.CategoryAuth,
		http.StatusServiceUnavailable: goerrors.CategoryExternal,
		http.StatusBadRequest:         goerrors.CategoryBadInput,
	}
	for status, category := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		}))

		adapter := NewRESTAdapter(server.Client(), nil)
		res, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL + "/blocks/9"})
		server.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("status %d: expected go-errors envelope, got %T", status, err)
		}
		if rich.Category != category {
			t.Fatalf("status %d: expected %q, got %q", status, category, rich.Category)
		}
		if rich.Code != status {
			t.Fatalf("status %d: expected code to match, got %d", status, rich.Code)
		}
		if rich.Metadata["response_body"] != `{"message":"nope"}` {
			t.Fatalf("status %d: expected body preview, got %#v", status, rich.Metadata["response_body"])
		}
		if res.StatusCode != status {
			t.Fatalf("status %d: expected response alongside error", status)
		}
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), nil)
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal || rich.TextCode != core.ServiceErrorExternalFailure {
		t.Fatalf("expected external failure, got %q/%q", rich.Category, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_TokenFailureIsAuthError(t *testing.T) {
	adapter := NewRESTAdapter(http.DefaultClient, staticTokens{err: errors.New("session expired")})

	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: "http://127.0.0.1:1/x"})
	if !core.IsCategory(err, goerrors.CategoryAuth) {
		t.Fatalf("expected auth category, got %v", err)
	}
}

func TestRESTAdapter_RequiresURL(t *testing.T) {
	_, err := NewRESTAdapter(nil, nil).Do(context.Background(), core.TransportRequest{})
	if !core.IsCategory(err, goerrors.CategoryBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
	var adapter *RESTAdapter
	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: "http://x"}); !core.IsCategory(err, goerrors.CategoryInternal) {
		t.Fatalf("expected internal error for nil adapter, got %v", err)
	}
}

func TestMultipartFile_StreamsUpload(t *testing.T) {
	var fileName, fileBody, partType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		payload, _ := io.ReadAll(file)
		fileName = header.Filename
		fileBody = string(payload)
		partType = header.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	body, contentType := MultipartFile("file", "/tmp/out/EmissionRecipientsOutput.xlsx", ContentTypeXLSX, strings.NewReader("sheet-bytes"))
	defer body.Close()

	_, err := NewRESTAdapter(server.Client(), nil).Do(context.Background(), core.TransportRequest{
		Method:     http.MethodPost,
		URL:        server.URL,
		BodyReader: body,
		Headers:    map[string]string{"Content-Type": contentType},
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if fileName != "EmissionRecipientsOutput.xlsx" || fileBody != "sheet-bytes" {
		t.Fatalf("unexpected upload %q %q", fileName, fileBody)
	}
	if partType != ContentTypeXLSX {
		t.Fatalf("expected excel part type, got %q", partType)
	}
}

func TestRateLimitedDoer_OpensThrottleWindowOn429(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	policy := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore(), 0, 0)
	doer := NewRateLimitedDoer(server.Client(), policy)
	adapter := NewRESTAdapter(doer, nil)

	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL + "/seal"})
	if !core.IsCategory(err, goerrors.CategoryRateLimit) {
		t.Fatalf("expected rate limit category from 429, got %v", err)
	}

	_, err = adapter.Do(context.Background(), core.TransportRequest{URL: server.URL + "/seal"})
	if err == nil {
		t.Fatalf("expected throttle window to block the second call")
	}
	if calls != 1 {
		t.Fatalf("expected the throttled call to stay local, got %d remote calls", calls)
	}
	if !core.IsCategory(err, goerrors.CategoryRateLimit) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestBodyPreview_KeepsRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", errorBodyPreviewBytes-1) + "ñandú"
	preview := bodyPreview([]byte(body))
	if !utf8.ValidString(preview) {
		t.Fatalf("expected valid utf-8 preview")
	}
	if len(preview) != errorBodyPreviewBytes-1 {
		t.Fatalf("expected preview to stop before the split rune, got %d bytes", len(preview))
	}
	if short := bodyPreview([]byte("  ok  ")); short != "ok" {
		t.Fatalf("expected trimmed short body, got %q", short)
	}
}
