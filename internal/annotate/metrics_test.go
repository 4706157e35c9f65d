package annotate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/repodescribe/internal/analysis"
	"github.com/fyrsmithlabs/repodescribe/internal/retry"
)

func TestAnnotate_RecordsAttempts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	calls := 0
	a := New(analysis.AnalyzerFunc(func(context.Context, string, string) (string, error) {
		calls++
		if calls < 3 {
			return "", rateLimited()
		}
		return "ok", nil
	}), retry.Policy{MaxAttempts: 5}, WithSleeper((&sleepLog{}).sleep), WithMeter(mp.Meter(instrumentationName)))

	_, err := a.Annotate(context.Background(), sample)
	require.NoError(t, err)

	term := New(analysis.AnalyzerFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("bad request")
	}), retry.Policy{MaxAttempts: 5}, WithMeter(mp.Meter(instrumentationName)))
	_, err = term.Annotate(context.Background(), sample)
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var retries int64
	byOutcome := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "repodescribe.annotator.retries_total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					retries += dp.Value
				}
			case "repodescribe.annotator.attempts":
				hist, ok := m.Data.(metricdata.Histogram[int64])
				require.True(t, ok)
				for _, dp := range hist.DataPoints {
					v, _ := dp.Attributes.Value("outcome")
					byOutcome[v.AsString()] += dp.Count
				}
			}
		}
	}
	assert.Equal(t, int64(2), retries)
	assert.Equal(t, map[string]uint64{"ok": 1, "failed": 1}, byOutcome)
}
