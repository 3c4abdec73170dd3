package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetly/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf, Component: ComponentBudget})
	l.Info("hello", FieldUserID, "u1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec[FieldComponent] != ComponentBudget || rec[FieldUserID] != "u1" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	l.WithComponent(ComponentRates).Warn("stale")
	if !strings.Contains(buf.String(), `"component":"rates"`) {
		t.Errorf("component not switched: %s", buf.String())
	}
}

func TestWithErrorAddsCode(t *testing.T) {
	err := core.NewError(core.KindPolicy, core.CodeGuestLimitReached, "limit")
	f := NewFields().WithError(errors.Join(errors.New("ctx"), err))
	if f[FieldErrorCode] != core.CodeGuestLimitReached {
		t.Errorf("fields = %v", f)
	}
	if _, ok := NewFields().WithError(errors.New("plain"))[FieldErrorCode]; ok {
		t.Error("plain errors carry no code")
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})
	ctx := WithLogger(context.Background(), base.With(FieldRequestID, "req-1"))

	FromContext(ctx).Info("inside")
	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Errorf("missing request id: %s", buf.String())
	}
}

func TestStructuredHTTPLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Output: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/api/summary", nil)

	sl.LogHTTPEnd(context.Background(), r, "req-1", http.StatusInternalServerError, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("5xx not logged at error: %s", buf.String())
	}
	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, "req-1", http.StatusNotFound, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Errorf("4xx not logged at warn: %s", buf.String())
	}
}

func TestReportingDisabled(t *testing.T) {
	flush := InitReporting("", "", "test", Discard())
	flush()
	// Without a configured client this must not panic or block.
	ReportError(context.Background(), errors.New("boom"), map[string]string{"k": "v"})
	ReportError(context.Background(), nil, nil)
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("expected fallback logger")
	}
}
