package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewProvider_RecordsSpansWithServiceResource(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := NewProvider(Config{ServiceName: "bookshop-test", Version: "1.2.3"}, sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "orders.create")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "orders.create", spans[0].Name())

	attrs := spans[0].Resource().Attributes()
	assert.Contains(t, attrs, attribute.String("service.name", "bookshop-test"))
	assert.Contains(t, attrs, attribute.String("service.version", "1.2.3"))
}

func TestNewProvider_DefaultServiceName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := NewProvider(Config{}, sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "x")
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Contains(t, recorder.Ended()[0].Resource().Attributes(), attribute.String("service.name", "bookshop-service"))
}
