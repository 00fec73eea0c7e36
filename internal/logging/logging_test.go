package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLevelParsing(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		logger := New(tc.level, "text")
		if !logger.Enabled(context.Background(), tc.want) {
			t.Errorf("New(%q): level %v not enabled", tc.level, tc.want)
		}
		if tc.want > slog.LevelDebug && logger.Enabled(context.Background(), tc.want-4) {
			t.Errorf("New(%q): level below %v unexpectedly enabled", tc.level, tc.want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Fatalf("empty context request ID = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req_123")
	if got := RequestID(ctx); got != "req_123" {
		t.Fatalf("request ID = %q, want req_123", got)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("context without logger must yield slog.Default")
	}

	custom := New("error", "text")
	ctx := WithLogger(context.Background(), custom)
	if FromContext(ctx) != custom {
		t.Error("context logger not returned")
	}
}

func TestLTagsRequestID(t *testing.T) {
	custom := New("info", "text")
	ctx := WithLogger(context.Background(), custom)

	// Without a request ID, L hands back the stored logger untouched.
	if L(ctx) != custom {
		t.Error("L without request ID must return the context logger")
	}

	// With one, it derives a child; the parent stays clean.
	tagged := L(WithRequestID(ctx, "req_9"))
	if tagged == custom {
		t.Error("L with request ID must return a derived logger")
	}
}
