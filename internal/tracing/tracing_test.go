package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaHeadersCarrySpan(t *testing.T) {
	shutdown, err := Init(context.Background(), "test", "")
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := Tracer().Start(context.Background(), "publish")
	defer span.End()

	headers := KafkaHeaders(ctx)

	var found bool
	for _, h := range headers {
		if h.Key == "traceparent" {
			found = true
			assert.Contains(t, string(h.Value), span.SpanContext().TraceID().String())
		}
	}
	assert.True(t, found, "traceparent header missing")
}

func TestKafkaHeadersWithoutSpan(t *testing.T) {
	assert.Empty(t, KafkaHeaders(context.Background()))
}
