// Command parley is the cross-platform message search CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/parley-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/parley-cli/internal/adapters/driven/tokenstore"
	"github.com/custodia-labs/parley-cli/internal/adapters/driving/cli"
	"github.com/custodia-labs/parley-cli/internal/connectors"
	"github.com/custodia-labs/parley-cli/internal/core/services"
	"github.com/custodia-labs/parley-cli/internal/credentials"
	"github.com/custodia-labs/parley-cli/internal/logger"
)

// Set via -ldflags "-X main.version=...".
var version = "dev"

const defaultTokenStoreURL = "http://localhost:8787"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeURL := os.Getenv("PARLEY_TOKEN_STORE_URL")
	if storeURL == "" {
		storeURL = defaultTokenStoreURL
	}

	creds := credentials.NewCache(tokenstore.NewClient(storeURL), 0)
	registry := services.NewRegistry(connectors.NewFactory(creds))

	configStore, err := file.NewConfigStore(os.Getenv("PARLEY_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	configs, err := configStore.List()
	if err != nil {
		return fmt.Errorf("read configurations: %w", err)
	}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := registry.Load(ctx, cfg); err != nil {
			logger.Warn("skipping %s: %v", cfg.ID, err)
		}
	}

	watcher, err := file.NewWatcher(configStore, registry)
	if err != nil {
		logger.Warn("config watcher unavailable: %v", err)
	} else {
		go watcher.Run(ctx)
	}

	orchestrator := services.NewOrchestrator(registry)
	defer orchestrator.Close()
	defer func() {
		if err := registry.Cleanup(); err != nil {
			logger.Warn("cleanup: %v", err)
		}
	}()

	cli.Configure(orchestrator, registry, configStore)
	cli.SetVersion(version)
	return cli.Execute(ctx)
}
