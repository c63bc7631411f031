// Command checkoutd runs the self-checkout API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/checkout"
	audithook "github.com/xraph/checkout/audit_hook"
	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/events/kafka"
	"github.com/xraph/checkout/httpapi"
	"github.com/xraph/checkout/idempotency"
	"github.com/xraph/checkout/internal/config"
	"github.com/xraph/checkout/internal/logging"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/provider/breaker"
	"github.com/xraph/checkout/provider/demo"
	"github.com/xraph/checkout/provider/stripe"
	"github.com/xraph/checkout/store/memory"
	"github.com/xraph/checkout/types"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "checkoutd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel)

	opts := []checkout.Option{
		checkout.WithLogger(logger),
		checkout.WithCatalog(seedCatalog()),
		checkout.WithTaxRate(cfg.TaxRatePercent),
		checkout.WithCurrency(cfg.Currency),
		checkout.WithExitTokenTTL(cfg.ExitTokenTTL),
		checkout.WithOrderTTL(cfg.OrderTTL),
		checkout.WithPlugin(audithook.New(audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
			logging.FromContext(ctx).Info("audit",
				"action", ev.Action,
				"resource", ev.Resource,
				"resource_id", ev.ResourceID,
				"outcome", ev.Outcome,
				"severity", ev.Severity,
			)
			return nil
		}), audithook.WithLogger(logger))),
	}

	var handlerOpts []httpapi.Option
	handlerOpts = append(handlerOpts, httpapi.WithLogger(logger))
	if cfg.WebhookSecret != "" {
		handlerOpts = append(handlerOpts, httpapi.WithWebhookSecret([]byte(cfg.WebhookSecret)))
	}

	var (
		inner   payment.Provider
		demoPay *demo.Provider
	)
	switch cfg.PaymentMode {
	case config.PaymentModeStripe:
		sp := stripe.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		inner = sp
		handlerOpts = append(handlerOpts, httpapi.WithStripeWebhook(sp))
	default:
		demoPay = demo.New(
			demo.WithDelay(cfg.DemoPaymentDelay),
			demo.WithFailureRate(cfg.DemoFailureRate),
			demo.WithLogger(logger),
		)
		inner = demoPay
	}
	opts = append(opts, checkout.WithPaymentProvider(breaker.Wrap(inner, breaker.Settings{}, logger)))

	if len(cfg.KafkaBrokers) > 0 {
		opts = append(opts, checkout.WithPlugin(kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic, kafka.WithLogger(logger))))
		logger.Info("publishing checkout events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		handlerOpts = append(handlerOpts,
			httpapi.WithIdempotency(idempotency.NewRedisStore(rdb, idempotencyTTL)),
			httpapi.WithReadinessCheck(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		)
	}

	eng := checkout.New(memory.New(), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	e := httpapi.NewServer(httpapi.New(eng, []byte(cfg.JWTSecret), handlerOpts...))
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "payment_mode", cfg.PaymentMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if demoPay != nil {
		demoPay.Close()
	}
	if err := eng.Stop(); err != nil {
		logger.Error("engine stop", "error", err)
		return err
	}
	return nil
}

// seedCatalog stocks the in-process catalog the daemon serves.
func seedCatalog() *catalog.Memory {
	return catalog.NewMemory(
		catalog.Product{Ref: "8901063010338", Name: "Milk 1L", SKU: "DAIRY-001", Price: types.INR(6000), Stock: 200},
		catalog.Product{Ref: "8901725133979", Name: "Whole Wheat Bread", SKU: "BAKE-014", Price: types.INR(4500), Stock: 120},
		catalog.Product{Ref: "8901030865237", Name: "Eggs (12)", SKU: "DAIRY-022", Price: types.INR(8400), Stock: 80},
		catalog.Product{Ref: "8906002480012", Name: "Basmati Rice 5kg", SKU: "GROC-101", Price: types.INR(62500), Stock: 40},
		catalog.Product{Ref: "8901491101837", Name: "Potato Chips", SKU: "SNCK-007", Price: types.INR(2000), Stock: 300},
	)
}
