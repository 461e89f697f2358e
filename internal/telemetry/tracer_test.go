package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestInitTracerEnabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{
		Enabled:      true,
		Environment:  "test",
		OTLPEndpoint: "localhost:4318",
		SamplingRate: 0,
	})
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background())

	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()
}
