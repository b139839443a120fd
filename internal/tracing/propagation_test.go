package tracing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithBackend(WithSessionID(context.Background(), "abc"), "claude")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("call")

	out := buf.String()
	assert.Contains(t, out, `"session_id":"abc"`)
	assert.Contains(t, out, `"backend":"claude"`)
	assert.NotContains(t, out, "trace_id")
}

func TestDetachIgnoresCancel(t *testing.T) {
	parent, cancel := context.WithCancel(WithSessionID(context.Background(), "abc"))
	detached := Detach(parent)
	cancel()

	select {
	case <-detached.Done():
		t.Fatal("detached context was cancelled")
	case <-time.After(10 * time.Millisecond):
	}
	assert.Equal(t, "abc", GetSessionID(detached))
	assert.NoError(t, detached.Err())
}
