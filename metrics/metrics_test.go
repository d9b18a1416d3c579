package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/paymentd/payment"
	"github.com/lightninglabs/paymentd/route"
)

type fakeRouter struct {
	route route.Route
}

func (f fakeRouter) GetRoute(ctx context.Context, req payment.RouteRequest) (route.Route, error) {
	return f.route, nil
}

func TestObserveOutcomeIncrementsCounter(t *testing.T) {
	t.Parallel()

	c := New()
	c.ObserveOutcome(&payment.Summary{
		Status:       payment.ResultComplete,
		FailCodeName: "",
	})
	c.ObserveOutcome(&payment.Summary{
		Status:       payment.ResultFailed,
		FailCodeName: "route_not_found",
	})

	metricFamilies, err := c.Registry().Gather()
	require.NoError(t, err)

	var outcomes *dto.MetricFamily
	for _, mf := range metricFamilies {
		if mf.GetName() == "paymentd_outcomes_total" {
			outcomes = mf
		}
	}
	require.NotNil(t, outcomes)
	require.Len(t, outcomes.Metric, 2)
}

func TestInstrumentedRouterPassesThroughAndRecordsLatency(t *testing.T) {
	t.Parallel()

	c := New()
	want := route.Route{{NodeID: route.Vertex{0xAA}}}
	r := InstrumentedRouter{Router: fakeRouter{route: want}, Collector: c}

	got, err := r.GetRoute(context.Background(), payment.RouteRequest{})
	require.NoError(t, err)
	require.Equal(t, want, got)

	metricFamilies, err := c.Registry().Gather()
	require.NoError(t, err)

	var hist *dto.MetricFamily
	for _, mf := range metricFamilies {
		if mf.GetName() == "paymentd_route_acquisition_seconds" {
			hist = mf
		}
	}
	require.NotNil(t, hist)
	require.Equal(t, uint64(1), hist.Metric[0].GetHistogram().GetSampleCount())
}

func TestSetHintGaugeValues(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetHintGaugeValues(3, 2)

	require.Equal(t, float64(3), testGaugeValue(t, c.hintsActive))
	require.Equal(t, float64(2), testGaugeValue(t, c.excludedNodes))
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
