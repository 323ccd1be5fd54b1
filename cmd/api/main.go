package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-payment-core/internal/client"
	"order-payment-core/internal/config"
	"order-payment-core/internal/handler"
	"order-payment-core/internal/logging"
	"order-payment-core/internal/metrics"
	"order-payment-core/internal/repository"
	"order-payment-core/internal/server"
	"order-payment-core/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Environment.Name, cfg.Log.Level)
	if err != nil {
		fmt.Printf("Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	db, err := client.InitPostgresClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	gatewayClient := client.NewGatewayClient(&cfg.Gateway, m)

	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	paymentMethodRepo := repository.NewPaymentMethodRepository(db)

	locker := service.NewInventoryLocker(
		db, orderRepo, inventoryRepo, logger,
		cfg.Inventory.LockRetries, cfg.Inventory.LockBackoff,
	)
	checkoutService := service.NewCheckoutService(
		db, gatewayClient, locker,
		productRepo, orderRepo, paymentRepo,
		logger, m,
	)
	webhookService := service.NewWebhookService(
		db, gatewayClient, locker,
		orderRepo, paymentRepo, webhookEventRepo, paymentMethodRepo,
		logger, m,
	)
	refundService := service.NewRefundService(
		db, gatewayClient, orderRepo, paymentRepo, logger, m,
	)

	reaper := service.NewReservationReaper(
		db, orderRepo, paymentRepo, locker, logger, m,
		cfg.Checkout.ReservationTTL, cfg.Checkout.ReaperInterval, cfg.Checkout.ReaperBatch,
	)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go reaper.Run(reaperCtx)

	srv := server.NewServer(
		handler.NewCheckoutHandler(checkoutService),
		handler.NewWebhookHandler(webhookService),
		handler.NewRefundHandler(refundService),
		cfg.Auth.JWTSecret,
		logger,
		registry,
	)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	logger.Info("starting HTTP server", zap.String("addr", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	logger.Info("signal received, starting graceful shutdown")

	stopReaper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("HTTP server shutdown error", zap.Error(err))
	}
}
