package observability_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/observability"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/types"
)

type fakeMetric struct {
	mu     sync.Mutex
	count  float64
	values []float64
}

func (f *fakeMetric) Inc() { f.Add(1) }

func (f *fakeMetric) Add(v float64) {
	f.mu.Lock()
	f.count += v
	f.mu.Unlock()
}

func (f *fakeMetric) Observe(v float64) {
	f.mu.Lock()
	f.values = append(f.values, v)
	f.mu.Unlock()
}

type fakeFactory struct {
	metrics map[string]*fakeMetric
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{metrics: make(map[string]*fakeMetric)}
}

func (f *fakeFactory) get(name string) *fakeMetric {
	m, ok := f.metrics[name]
	if !ok {
		m = &fakeMetric{}
		f.metrics[name] = m
	}
	return m
}

func (f *fakeFactory) Counter(name string) observability.Counter     { return f.get(name) }
func (f *fakeFactory) Histogram(name string) observability.Histogram { return f.get(name) }

func TestMetricsExtension(t *testing.T) {
	factory := newFakeFactory()
	m := observability.NewMetricsExtension(factory)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	paid := created.Add(30 * time.Second)
	exited := paid.Add(2 * time.Minute)
	o := &order.Order{
		Entity:   types.NewEntityAt(created),
		ID:       id.NewOrderID(),
		Total:    types.INR(413),
		PaidAt:   &paid,
		ExitedAt: &exited,
	}

	require.NoError(t, m.OnOrderCompiled(ctx, o))
	require.NoError(t, m.OnOrderPaid(ctx, o, nil))
	require.NoError(t, m.OnExitTokenIssued(ctx, o, &exittoken.Token{Generation: 1}))
	require.NoError(t, m.OnExitTokenIssued(ctx, o, &exittoken.Token{Generation: 2}))
	require.NoError(t, m.OnExitVerified(ctx, o, nil))
	require.NoError(t, m.OnExitDenied(ctx, exittoken.OutcomeAlreadyUsed, nil))
	require.NoError(t, m.OnExitDenied(ctx, exittoken.OutcomeInvalid, nil))
	require.NoError(t, m.OnOrderCancelled(ctx, o, "expired"))

	assert.Equal(t, float64(1), factory.get("checkout.order.compiled").count)
	assert.Equal(t, []float64{413}, factory.get("checkout.order.total_minor").values)
	assert.Equal(t, float64(1), factory.get("checkout.order.paid").count)
	assert.Equal(t, []float64{30000}, factory.get("checkout.payment.time_to_pay_ms").values)
	assert.Equal(t, float64(1), factory.get("checkout.exit.token.issued").count)
	assert.Equal(t, float64(1), factory.get("checkout.exit.token.reissued").count)
	assert.Equal(t, []float64{120000}, factory.get("checkout.exit.time_to_exit_ms").values)
	assert.Equal(t, float64(1), factory.get("checkout.exit.denied.already_used").count)
	assert.Equal(t, float64(1), factory.get("checkout.exit.denied.invalid").count)
	assert.Equal(t, float64(1), factory.get("checkout.order.expired").count)
	assert.Zero(t, factory.get("checkout.order.cancelled").count)
}
