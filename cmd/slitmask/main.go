package main

import (
	"fmt"
	"os"

	"slitmask/internal/cli"
	"slitmask/internal/config"
	"slitmask/internal/instrument"
	"slitmask/internal/logging"
	"slitmask/internal/service"
	"slitmask/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	inst, err := instrument.LoadProfile(cfg.Paths.InstrumentProfile)
	if err != nil {
		logger.Error("failed to load instrument profile", "path", cfg.Paths.InstrumentProfile, "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Database.Driver, "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}

	svc := service.New(inst, store, logger)
	// cobra reports the error itself
	code := 0
	if err := cli.NewRootCmd(cfg, logger, svc).Execute(); err != nil {
		code = 1
	}
	svc.Close()
	store.Close()
	os.Exit(code)
}
