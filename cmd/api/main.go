package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/api"
	"github.com/khidmahub/khidmahub/internal/billing"
	"github.com/khidmahub/khidmahub/internal/catalog"
	"github.com/khidmahub/khidmahub/internal/config"
	"github.com/khidmahub/khidmahub/internal/db"
	"github.com/khidmahub/khidmahub/internal/events"
	"github.com/khidmahub/khidmahub/internal/logging"
	"github.com/khidmahub/khidmahub/internal/notify"
	"github.com/khidmahub/khidmahub/internal/orders"
	"github.com/khidmahub/khidmahub/internal/relay"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("schema setup failed", zap.Error(err))
	}

	// Stores
	orderStore := orders.NewPgStore(pool)
	invoiceStore := billing.NewPgInvoiceStore(pool)
	earningsStore := billing.NewPgEarningsStore(pool)
	notifStore := notify.NewPgStore(pool)
	serviceCatalog := catalog.NewPgLookup(pool)

	// Delivery relay is optional: without Redis the feed still works, only
	// out-of-process delivery is skipped.
	var enqueuer notify.Enqueuer
	if cfg.Redis.Addr != "" {
		r := relay.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = r.Close() }()
		enqueuer = r
		logger.Info("notification relay enabled", zap.String("redis", cfg.Redis.Addr))
	} else {
		logger.Info("notification relay disabled, no redis.addr configured")
	}

	// Event wiring. The settlement engine subscribes before the dispatcher so
	// an issued invoice's notification sees the invoice row.
	orderBus := events.NewBus[orders.Event]("orders", logger)
	invoiceBus := events.NewBus[billing.Event]("invoices", logger)

	engine := billing.NewEngine(invoiceStore, earningsStore, serviceCatalog,
		invoiceBus, logger, orders.Status(cfg.Settlement.InvoiceTrigger), cfg.Settlement.DueDays)
	dispatcher := notify.NewDispatcher(notifStore, serviceCatalog, enqueuer, logger)

	orderBus.Subscribe(engine.HandleOrderEvent)
	orderBus.Subscribe(dispatcher.HandleOrderEvent)
	invoiceBus.Subscribe(engine.HandleInvoiceEvent)
	invoiceBus.Subscribe(dispatcher.HandleInvoiceEvent)

	ledger := orders.NewLedger(orderStore, serviceCatalog, orderBus, logger, cfg.Offers.ExclusiveAccept)

	e := api.NewRouter(api.Handlers{
		Orders:        api.NewOrderHandlers(ledger, logger),
		Invoices:      api.NewInvoiceHandlers(engine, logger),
		Notifications: api.NewNotificationHandlers(dispatcher, logger),
	}, cfg.Auth.JWTSecret, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("api server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
