package core

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestObserver_RecordsSuccessMetricsAndDebugLog(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	observer := NewObserver("certidigital", logger, metrics)

	observer.Observe(context.Background(), time.Now(), "Seal Emissions", nil, map[string]any{
		"block_id":          "B1",
		"issuing_center_id": int64(7),
	})

	if len(metrics.counters) != 1 || metrics.counters[0].name != "certidigital.seal_emissions.total" {
		t.Fatalf("expected normalized counter name, got %#v", metrics.counters)
	}
	tags := metrics.counters[0].tags
	if tags["status"] != "success" || tags["block_id"] != "B1" || tags["issuing_center_id"] != "7" {
		t.Fatalf("unexpected counter tags %#v", tags)
	}
	if len(metrics.histograms) != 1 || metrics.histograms[0].name != "certidigital.seal_emissions.duration_ms" {
		t.Fatalf("expected duration histogram, got %#v", metrics.histograms)
	}

	records := logger.snapshot()
	if len(records) != 1 || records[0].level != "debug" {
		t.Fatalf("expected one debug log, got %#v", records)
	}
	if records[0].fields["operation"] != "seal_emissions" {
		t.Fatalf("expected operation field, got %#v", records[0].fields)
	}
}

func TestObserver_FailureLogsStructuredError(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	observer := NewObserver("", logger, metrics)

	failure := goerrors.New("remote down", goerrors.CategoryExternal)
	observer.Observe(context.Background(), time.Now(), "fetch_block", failure, nil)

	if metrics.counters[0].name != DefaultServiceName+".fetch_block.total" {
		t.Fatalf("expected default prefix, got %q", metrics.counters[0].name)
	}
	if metrics.counters[0].tags["status"] != "failure" {
		t.Fatalf("expected failure status tag")
	}
	records := logger.snapshot()
	if len(records) != 1 || records[0].level != "error" {
		t.Fatalf("expected an error log, got %#v", records)
	}
	if records[0].fields["error"] != failure.Error() {
		t.Fatalf("expected error field, got %#v", records[0].fields["error"])
	}
}

func TestFlattenFields_SortsKeys(t *testing.T) {
	args := FlattenFields(map[string]any{"b": 2, "a": 1})
	if len(args) != 4 || args[0] != "a" || args[2] != "b" {
		t.Fatalf("expected sorted key/value args, got %#v", args)
	}
	if FlattenFields(nil) != nil {
		t.Fatalf("expected nil args for empty fields")
	}
}
