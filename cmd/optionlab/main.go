package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"optionlab/internal/cli"
	"optionlab/internal/config"
	"optionlab/internal/errors"
	"optionlab/internal/logging"
	"optionlab/internal/metrics"
)

func main() {
	cfg, err := config.Load(configDir(os.Args[1:]))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(cfg.Logging)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// configDir finds --config before cobra parses the command line, since the
// config decides how commands are built.
func configDir(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func exitCode(err error) int {
	switch {
	case errors.SearchCode(err) != "":
		return 3
	case errors.Is(err, errors.ErrInvalidInput):
		return 2
	default:
		return 1
	}
}
