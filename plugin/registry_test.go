package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/plugin"
)

type recorder struct {
	name     string
	compiled atomic.Int32
	denied   atomic.Int32
	fail     bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnOrderCompiled(_ context.Context, _ *order.Order) error {
	r.compiled.Add(1)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnExitDenied(_ context.Context, _ exittoken.Outcome, _ *exittoken.Token) error {
	r.denied.Add(1)
	return nil
}

type sleeper struct{}

func (sleeper) Name() string { return "sleeper" }

func (sleeper) OnOrderCompiled(ctx context.Context, _ *order.Order) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	assert.Error(t, r.Register(&recorder{name: "a"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := plugin.NewRegistry()
	a := &recorder{name: "a"}
	b := &recorder{name: "b", fail: true}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	ctx := context.Background()
	r.EmitOrderCompiled(ctx, &order.Order{})
	r.EmitExitDenied(ctx, exittoken.OutcomeInvalid, nil)
	r.EmitOrderPaid(ctx, &order.Order{}, nil)

	assert.Equal(t, int32(1), a.compiled.Load())
	assert.Equal(t, int32(1), b.compiled.Load(), "a failing hook is still called")
	assert.Equal(t, int32(1), a.denied.Load())
	assert.Len(t, r.List(), 2)
}

func TestEmitTimesOut(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(sleeper{}))

	start := time.Now()
	r.EmitOrderCompiled(context.Background(), &order.Order{})
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
