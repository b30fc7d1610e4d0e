package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/evalgraph/internal/app"
	"github.com/vk/evalgraph/internal/cli"
	"github.com/vk/evalgraph/internal/config"
	"github.com/vk/evalgraph/internal/hcl_adapter"
	"github.com/vk/evalgraph/internal/yaml_adapter"
)

// main is the entrypoint for the evalgraph application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW, logW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	loader := config.NewMultiLoader(hcl_adapter.NewLoader(), yaml_adapter.NewLoader())
	evalApp, err := app.NewApp(outW, appConfig, loader, app.WithLogWriter(logW))
	if err != nil {
		return fmt.Errorf("application startup failed: %w", err)
	}
	return evalApp.Run(ctx)
}
