package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
)

// DefaultHookTimeout bounds how long a single hook call may block the engine.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once, at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration
	hooks   hookSet
}

// hookSet holds the type-cached plugin lists used for dispatch.
type hookSet struct {
	onInit             []OnInit
	onShutdown         []OnShutdown
	onCartUpdated      []OnCartUpdated
	onOrderCompiled    []OnOrderCompiled
	onOrderCancelled   []OnOrderCancelled
	onPaymentInitiated []OnPaymentInitiated
	onOrderPaid        []OnOrderPaid
	onPaymentFailed    []OnPaymentFailed
	onPaymentFlagged   []OnPaymentFlagged
	onExitTokenIssued  []OnExitTokenIssued
	onExitVerified     []OnExitVerified
	onExitDenied       []OnExitDenied
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.hooks.onInit = append(r.hooks.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.hooks.onShutdown = append(r.hooks.onShutdown, v)
	}
	if v, ok := p.(OnCartUpdated); ok {
		r.hooks.onCartUpdated = append(r.hooks.onCartUpdated, v)
	}
	if v, ok := p.(OnOrderCompiled); ok {
		r.hooks.onOrderCompiled = append(r.hooks.onOrderCompiled, v)
	}
	if v, ok := p.(OnOrderCancelled); ok {
		r.hooks.onOrderCancelled = append(r.hooks.onOrderCancelled, v)
	}
	if v, ok := p.(OnPaymentInitiated); ok {
		r.hooks.onPaymentInitiated = append(r.hooks.onPaymentInitiated, v)
	}
	if v, ok := p.(OnOrderPaid); ok {
		r.hooks.onOrderPaid = append(r.hooks.onOrderPaid, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.hooks.onPaymentFailed = append(r.hooks.onPaymentFailed, v)
	}
	if v, ok := p.(OnPaymentFlagged); ok {
		r.hooks.onPaymentFlagged = append(r.hooks.onPaymentFlagged, v)
	}
	if v, ok := p.(OnExitTokenIssued); ok {
		r.hooks.onExitTokenIssued = append(r.hooks.onExitTokenIssued, v)
	}
	if v, ok := p.(OnExitVerified); ok {
		r.hooks.onExitVerified = append(r.hooks.onExitVerified, v)
	}
	if v, ok := p.(OnExitDenied); ok {
		r.hooks.onExitDenied = append(r.hooks.onExitDenied, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnCartUpdated", reflect.TypeFor[OnCartUpdated]()},
	{"OnOrderCompiled", reflect.TypeFor[OnOrderCompiled]()},
	{"OnOrderCancelled", reflect.TypeFor[OnOrderCancelled]()},
	{"OnPaymentInitiated", reflect.TypeFor[OnPaymentInitiated]()},
	{"OnOrderPaid", reflect.TypeFor[OnOrderPaid]()},
	{"OnPaymentFailed", reflect.TypeFor[OnPaymentFailed]()},
	{"OnPaymentFlagged", reflect.TypeFor[OnPaymentFlagged]()},
	{"OnExitTokenIssued", reflect.TypeFor[OnExitTokenIssued]()},
	{"OnExitVerified", reflect.TypeFor[OnExitVerified]()},
	{"OnExitDenied", reflect.TypeFor[OnExitDenied]()},
}

// implementedInterfaces returns the hook interfaces p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every hook in hooks, logging failures. Hook errors never
// reach the engine's caller.
func emit[H Plugin](ctx context.Context, r *Registry, event string, hooks []H, call func(H) error) {
	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error { return call(h) }); err != nil {
			r.logger.Warn("plugin "+event+" failed",
				"plugin", h.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) snapshot() hookSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hooks
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	hooks := r.snapshot().onInit
	emit(ctx, r, "OnInit", hooks, func(h OnInit) error { return h.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	hooks := r.snapshot().onShutdown
	emit(ctx, r, "OnShutdown", hooks, func(h OnShutdown) error { return h.OnShutdown(ctx) })
}

// EmitCartUpdated emits a cart updated event.
func (r *Registry) EmitCartUpdated(ctx context.Context, snap *cart.Snapshot) {
	hooks := r.snapshot().onCartUpdated
	emit(ctx, r, "OnCartUpdated", hooks, func(h OnCartUpdated) error { return h.OnCartUpdated(ctx, snap) })
}

// EmitOrderCompiled emits an order compiled event.
func (r *Registry) EmitOrderCompiled(ctx context.Context, o *order.Order) {
	hooks := r.snapshot().onOrderCompiled
	emit(ctx, r, "OnOrderCompiled", hooks, func(h OnOrderCompiled) error { return h.OnOrderCompiled(ctx, o) })
}

// EmitOrderCancelled emits an order cancelled event.
func (r *Registry) EmitOrderCancelled(ctx context.Context, o *order.Order, reason string) {
	hooks := r.snapshot().onOrderCancelled
	emit(ctx, r, "OnOrderCancelled", hooks, func(h OnOrderCancelled) error { return h.OnOrderCancelled(ctx, o, reason) })
}

// EmitPaymentInitiated emits a payment initiated event.
func (r *Registry) EmitPaymentInitiated(ctx context.Context, p *payment.Payment) {
	hooks := r.snapshot().onPaymentInitiated
	emit(ctx, r, "OnPaymentInitiated", hooks, func(h OnPaymentInitiated) error { return h.OnPaymentInitiated(ctx, p) })
}

// EmitOrderPaid emits an order paid event.
func (r *Registry) EmitOrderPaid(ctx context.Context, o *order.Order, p *payment.Payment) {
	hooks := r.snapshot().onOrderPaid
	emit(ctx, r, "OnOrderPaid", hooks, func(h OnOrderPaid) error { return h.OnOrderPaid(ctx, o, p) })
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, o *order.Order, p *payment.Payment) {
	hooks := r.snapshot().onPaymentFailed
	emit(ctx, r, "OnPaymentFailed", hooks, func(h OnPaymentFailed) error { return h.OnPaymentFailed(ctx, o, p) })
}

// EmitPaymentFlagged emits a payment flagged event.
func (r *Registry) EmitPaymentFlagged(ctx context.Context, p *payment.Payment, reason string) {
	hooks := r.snapshot().onPaymentFlagged
	emit(ctx, r, "OnPaymentFlagged", hooks, func(h OnPaymentFlagged) error { return h.OnPaymentFlagged(ctx, p, reason) })
}

// EmitExitTokenIssued emits an exit token issued event.
func (r *Registry) EmitExitTokenIssued(ctx context.Context, o *order.Order, t *exittoken.Token) {
	hooks := r.snapshot().onExitTokenIssued
	emit(ctx, r, "OnExitTokenIssued", hooks, func(h OnExitTokenIssued) error { return h.OnExitTokenIssued(ctx, o, t) })
}

// EmitExitVerified emits an exit verified event.
func (r *Registry) EmitExitVerified(ctx context.Context, o *order.Order, t *exittoken.Token) {
	hooks := r.snapshot().onExitVerified
	emit(ctx, r, "OnExitVerified", hooks, func(h OnExitVerified) error { return h.OnExitVerified(ctx, o, t) })
}

// EmitExitDenied emits an exit denied event.
func (r *Registry) EmitExitDenied(ctx context.Context, outcome exittoken.Outcome, t *exittoken.Token) {
	hooks := r.snapshot().onExitDenied
	emit(ctx, r, "OnExitDenied", hooks, func(h OnExitDenied) error { return h.OnExitDenied(ctx, outcome, t) })
}

// callWithTimeout runs fn, giving up after the registry timeout or when ctx
// is done. fn keeps running in the background if abandoned.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
