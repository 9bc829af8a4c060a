package core

import (
	"context"
	"io"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TokenSource hands out the bearer token for the current session.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type TransportRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	// BodyReader takes precedence over Body when set, for streamed uploads.
	BodyReader           io.Reader
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	RequestID            string
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}
