package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestParseHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"authorization": "Bearer x", "team": "records"},
		ParseHeaders(" authorization=Bearer x, team=records ,broken, =empty"))
	assert.Nil(t, ParseHeaders(""))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-1))
	assert.Equal(t, 1.0, clamp(3))
	assert.Equal(t, 0.25, clamp(0.25))
}

func TestInitTracing(t *testing.T) {
	shutdown := InitTracing(context.Background(), nil, Config{})
	require.NoError(t, shutdown(context.Background()))

	shutdown = InitTracing(context.Background(), nil, Config{Enabled: true, ServiceName: "records-test", SampleRatio: 1})
	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}
