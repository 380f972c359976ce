// Command keep-loader is the minimal external driver: it hands the
// core a byte slice, an argument list, and an environment, either read
// directly off disk (the "run" subcommand) or received over an
// attested HTTPS ingest endpoint (the default, "serve").
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/keep-loader/internal/workload"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint used by tests; main only wires it to the real
// process argv/stdio.
func Run(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if len(args) < 2 {
		return runServe(logger)
	}

	switch args[1] {
	case "run":
		return runLocal(logger, args[2:])
	case "serve":
		return runServe(logger)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "keep-loader run <module.wasm> [guest-arg...]")
	fmt.Fprintln(w, "keep-loader serve   (default) run the HTTPS ingest endpoint")
}

func runLocal(logger *slog.Logger, rest []string) int {
	if len(rest) < 1 {
		logger.Error("run requires a module path")
		return 2
	}

	moduleBytes, err := os.ReadFile(rest[0]) //nolint:gosec // operator-supplied path
	if err != nil {
		logger.Error("reading module", "path", rest[0], "err", err)
		return 1
	}

	results, err := workload.Run(context.Background(), moduleBytes, rest[1:], os.Environ())
	if err != nil {
		logger.Error("run failed", "err", err)
		return 1
	}

	logger.Info("run succeeded", "results", results)
	return 0
}

func runServe(logger *slog.Logger) int {
	addr := os.Getenv("KEEP_LOADER_ADDR")
	if addr == "" {
		addr = ":8443"
	}

	if err := serve(context.Background(), logger, addr); err != nil {
		logger.Error("serve failed", "err", err)
		return 1
	}
	return 0
}
