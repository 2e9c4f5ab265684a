package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMeterProviderExportsToRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	provider, err := NewMeterProvider(context.Background(), Config{ServiceName: "test"}, registry)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, provider.Shutdown(context.Background()))
	}()

	counter, err := provider.Meter(InstrumentationName).Int64Counter("channel_reloads_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[family.GetName()] = c.GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["channel_reloads_total"])
}
