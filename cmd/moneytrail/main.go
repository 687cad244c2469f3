// Command moneytrail imports OpenSecrets campaign-finance bulk files into
// SQLite and derives partisan spending time series from them.
//
// Usage:
//
//	moneytrail -mode all                 # import then derive (default)
//	moneytrail -mode import -data-dir ./data
//	moneytrail -mode derive
//	moneytrail -mode import -reset       # discard checkpoint, reload everything
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/moneytrail/moneytrail/internal/app"
	"github.com/moneytrail/moneytrail/internal/config"
	"github.com/moneytrail/moneytrail/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "moneytrail: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML or JSON config file")
		mode       = flag.String("mode", "", "pipeline mode: all, import, derive")
		dataDir    = flag.String("data-dir", "", "base data directory")
		cycles     = flag.String("cycles", "", "comma-separated election cycles (e.g. 2004,2008)")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
		reset      = flag.Bool("reset", false, "discard the import checkpoint and reload everything")
	)
	flag.Parse()

	// A .env file is optional; environment wins over it either way.
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	// Flags override file and environment.
	if *mode != "" {
		cfg.Mode = config.Mode(*mode)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *cycles != "" {
		cfg.Cycles = strings.Split(*cycles, ",")
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("mode", string(cfg.Mode)).Strs("cycles", cfg.Cycles).
		Str("data_dir", cfg.DataDir).Msg("moneytrail starting")

	pipeline := app.New(cfg, logger)
	pipeline.ResetCheckpoint = *reset
	return pipeline.Run(ctx)
}
