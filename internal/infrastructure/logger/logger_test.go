package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestLogHTTPRequest(t *testing.T) {
	l, logs := newObserved()

	l.WithRequestID("req-1").LogHTTPRequest("GET", "/raw/scripts/deploy.ps1", "curl/8.4.0", "192.0.2.1", 200, 1.5, nil)
	l.LogHTTPRequest("GET", "/scripts/deploy.ps1", "Mozilla/5.0", "192.0.2.1", 500, 2, errors.New("boom"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	ok := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "req-1", ok["request_id"])
	assert.Equal(t, "/raw/scripts/deploy.ps1", ok["uri"])
	assert.Equal(t, int64(200), ok["status"])

	failed := entries[1].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", failed["error"])
	assert.NotContains(t, failed, "request_id")
}

func TestWithErrorAndSecurityEvent(t *testing.T) {
	l, logs := newObserved()

	l.WithComponent("files").WithError(errors.New("denied")).LogSecurityEvent("path_escape", "192.0.2.1", map[string]interface{}{
		"path": "/raw/../secret.sh",
	})

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "files", fields["component"])
	assert.Equal(t, "denied", fields["error"])
	assert.Equal(t, "path_escape", fields["security_event"])
	assert.Equal(t, "/raw/../secret.sh", fields["path"])
}
