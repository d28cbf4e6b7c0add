package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cloudpico-humidity/internal/config"
	"cloudpico-humidity/internal/db"
	"cloudpico-humidity/internal/flow"
	"cloudpico-humidity/internal/httpapi"
	"cloudpico-humidity/internal/metrics"
	"cloudpico-humidity/internal/migrate"
	"cloudpico-humidity/internal/modules/nodes"
	"cloudpico-humidity/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"sqliteLogStatements", cfg.SQLiteLogStatements,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"nodesFile", cfg.NodesFile,
	)

	defs, err := cfg.Nodes()
	if err != nil {
		return err
	}

	dbConn, err := db.Open(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if _, err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}
	slog.Info("database ready")

	mqttClient := mqtt.NewClient(cfg, slog.Default())
	registry := metrics.NewRegistry()

	runtime := flow.NewRuntime(slog.Default(),
		mqtt.NewPublishSink(mqttClient),
		nodes.NewStoreSink(dbConn),
	)
	runtime.SetObserver(registry.Observe)

	// Subscriptions are recorded before Connect so the connect handler
	// subscribes before the broker delivers anything.
	deployer := newDeployer(ctx, runtime, mqttClient, registry, slog.Default())
	if err := deployer.deploy(defs); err != nil {
		return err
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	err = mqttClient.Connect(connectCtx)
	connectCancel()
	if err != nil {
		// HTTP and /healthz keep working; paho retries in the background.
		slog.Warn("mqtt connection failed (continuing, retrying in background)", "error", err)
	}

	if cfg.NodesFile != "" {
		go func() {
			err := config.WatchNodes(ctx, cfg.NodesFile, func(defs []flow.Definition) {
				if err := deployer.deploy(defs); err != nil {
					slog.Error("redeploy failed", "error", err)
				}
			})
			if err != nil {
				slog.Error("nodes file watch stopped", "path", cfg.NodesFile, "error", err)
			}
		}()
	}

	mux := httpapi.NewMux(dbConn, mqttClient, registry.Handler())
	nodes.RegisterFeature(mux, dbConn, runtime)

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		mqttClient.Disconnect()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("mqtt disconnecting")
	mqttClient.Disconnect()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
