// README: Entry point; loads config, wires services, starts HTTP server and background workers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"towline/internal/config"
	"towline/internal/fanout"
	httptransport "towline/internal/http"
	"towline/internal/infra"
	"towline/internal/logger"
	"towline/internal/modules/driver"
	"towline/internal/modules/order"
	"towline/internal/modules/pricing"
	"towline/internal/modules/session"
	"towline/internal/modules/settings"
	"towline/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		zlog.Fatal("db init", zap.Error(err))
	}
	defer dbPool.Close()

	if err := migrations.Apply(ctx, dbPool); err != nil {
		zlog.Fatal("apply migrations", zap.Error(err))
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	bus := fanout.NewRedis(redisClient, zlog)

	settingsStore := settings.NewStore(dbPool)
	settingsSvc := settings.NewService(settingsStore)

	pricingSvc := pricing.NewService(settingsSvc, cfg.Pricing.DefaultRatePerKm)

	driverStore := driver.NewStore(dbPool)
	driverSvc := driver.NewService(driverStore)

	orderStore := order.NewPgStore(dbPool)
	orderSvc := order.NewService(orderStore, pricingSvc, driverSvc, bus, zlog)

	sessionSvc := session.NewService(driverSvc, orderSvc, cfg.Session.IdleTimeout, zlog)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Order:    orderSvc,
		Drivers:  driverSvc,
		Sessions: sessionSvc,
		Settings: settingsSvc,
		Bus:      bus,
		Log:      zlog,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go sessionSvc.RunJanitor(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("http shutdown", zap.Error(err))
		}
	}()

	zlog.Info("towline api listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal("http server", zap.Error(err))
	}
}
