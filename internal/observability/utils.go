package observability

import (
	"log/slog"
	"os"
	"testing"
)

// defaultLevel tracks the level applied to slog's Default logger by
// SetTestDebugLogging, since this Go toolchain predates slog.SetLogLoggerLevel.
var defaultLevel = new(slog.LevelVar)

// SetTestDebugLogging assigns DEBUG level to slog Default logger for test duration
func SetTestDebugLogging(t *testing.T) {
	oldLevel := defaultLevel.Level()
	if oldLevel != slog.LevelDebug {
		defaultLevel.Set(slog.LevelDebug)
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: defaultLevel})))
		t.Logf("Setting slog level to %s", slog.LevelDebug)
		t.Cleanup(func() {
			t.Logf("Restoring slog level to %s", oldLevel)
			defaultLevel.Set(oldLevel)
		})
	}
}
