package tracing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/gosuda/audittrail/internal/tracing"
)

func TestInitTracer(t *testing.T) {
	t.Run("empty endpoint is a no-op", func(t *testing.T) {
		shutdown, err := tracing.InitTracer(context.Background(), tracing.Config{ServiceName: "audittrail"})
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("installs provider and propagators", func(t *testing.T) {
		prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
		t.Cleanup(func() {
			otel.SetTracerProvider(prevTP)
			otel.SetTextMapPropagator(prevProp)
		})

		shutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
			ServiceName: "audittrail",
			Environment: "test",
			Endpoint:    "http://127.0.0.1:4318/v1/traces",
		})
		require.NoError(t, err)

		spanCtx, span := tracing.GetTracer("test").Start(context.Background(), "capture")
		assert.True(t, span.SpanContext().IsValid())

		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(spanCtx, carrier)
		assert.NotEmpty(t, carrier.Get("traceparent"))
		span.End()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		// Nothing listens on the endpoint; the span is dropped and shutdown
		// still returns once ctx expires.
		_ = shutdown(ctx)
	})
}
