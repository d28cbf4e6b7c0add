package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloudpico-humidity/internal/app"
	"cloudpico-humidity/internal/config"
	"cloudpico-humidity/internal/humidity"
	"cloudpico-humidity/internal/logging"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const appName = "cloudpico-humidity"

func main() {
	showVersion := flag.Bool("version", false, "print the version and exit")
	checkOnly := flag.Bool("check", false, "validate the configuration and node definitions, then exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appName, version)
		return
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if *checkOnly {
		if err := check(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}

// check prints the nodes that would be deployed.
func check(cfg config.Config) error {
	defs, err := cfg.Nodes()
	if err != nil {
		return err
	}
	for _, d := range defs {
		f, known := humidity.ParseFormula(d.Formula)
		note := ""
		if !known && d.Formula != "" {
			note = fmt.Sprintf(" (unknown formula %q)", d.Formula)
		}
		fmt.Printf("%s: %s -> %s, formula %s%s\n", d.Name, d.Input, d.Output, f.DisplayName(), note)
	}
	return nil
}
