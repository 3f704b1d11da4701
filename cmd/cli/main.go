package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vk/gridloop/internal/app"
	"github.com/vk/gridloop/internal/cli"
	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/hcl"
	"github.com/vk/gridloop/internal/yaml"
)

// main is the entrypoint for the gridloop application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Optional .env file for REDIS_URL and friends; absence is fine.
	_ = godotenv.Load()

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	a := app.NewApp(outW, cfg, loaderFor(cfg.WorkflowPath))
	return a.Run(context.Background())
}

// loaderFor picks the workflow loader from the path's extension; directories
// default to HCL.
func loaderFor(path string) config.Loader {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return yaml.NewLoader()
	}
	return hcl.NewLoader()
}
