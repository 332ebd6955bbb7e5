package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordOperationCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOperation(ctx, "book", "ok", 5*time.Millisecond)
	m.RecordOperation(ctx, "book", "slot_unavailable", time.Millisecond)
	m.RecordOperation(ctx, "book", "ok", 2*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	total := int64(0)
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "clinic_operations_total" {
				continue
			}
			found = true
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			assert.Len(t, sum.DataPoints, 2)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.True(t, found)
	assert.Equal(t, int64(3), total)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "book", "ok", time.Second)
		m.RecordNotification(context.Background(), "nats", false)
		m.RecordHTTP(context.Background(), "GET", "/doctors", 200, time.Second)
	})
}
