package resource

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLoadSpans(t *testing.T) {
	ctx := testContext(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	f := newFixture("a", "1")
	r := newMap(f, WithTracer(provider.Tracer("test")), WithName("connections"))

	_, err := r.Load(ctx, One("a"), "details")
	require.NoError(t, err)
	f.fail(errors.New("boom"))
	_, err = r.Refresh(ctx, One("a"))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "resource.load", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("resource.name", "connections"))
	assert.Contains(t, spans[0].Attributes(), attribute.StringSlice("resource.includes", []string{"details"}))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}
