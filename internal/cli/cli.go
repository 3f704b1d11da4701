// Package cli parses command-line arguments into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vk/gridloop/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("gridloop", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
gridloop - a workflow engine with convergence-driven feedback cycles.

Usage:
  gridloop [options] [WORKFLOW_PATH]

Arguments:
  WORKFLOW_PATH
    Path to a workflow file (.hcl, .yaml, .yml) or a directory of them.

Options:
`)
		flagSet.PrintDefaults()
	}

	workflowFlag := flagSet.String("workflow", "", "Path to the workflow file or directory.")
	wFlag := flagSet.String("w", "", "Path to the workflow file or directory (shorthand).")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the scheduler.")
	stateBackendFlag := flagSet.String("state-backend", "memory", "Carried-state backend. Options: 'memory' or 'redis'.")
	redisURLFlag := flagSet.String("redis-url", "", "Redis connection URL for the redis state backend. Defaults to $REDIS_URL.")
	runTimeoutFlag := flagSet.Duration("run-timeout", 0, "Optional wall-clock bound for the whole run. 0 is disabled.")
	keepStateFlag := flagSet.Bool("keep-state", false, "Keep carried state in the store after the run finishes.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *workflowFlag != "" {
		path = *workflowFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Workflow path determined.", "path", path)

	if path == "" {
		slog.Debug("No workflow path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	redisURL := *redisURLFlag
	if strings.ToLower(*stateBackendFlag) == app.StateBackendRedis && redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}

	cfg, err := app.NewConfig(app.Config{
		WorkflowPath:    path,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		WorkerCount:     *workersFlag,
		StateBackend:    strings.ToLower(*stateBackendFlag),
		RedisURL:        redisURL,
		RunTimeout:      timeoutOrZero(*runTimeoutFlag),
		KeepState:       *keepStateFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return cfg, false, nil
}

func timeoutOrZero(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
