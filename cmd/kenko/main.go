// Command kenko runs the fitness retrieval service from the terminal.
//
// Usage:
//
//	kenko ask "how has my weight changed" [-n 5] [-hybrid]
//	kenko ingest < document.json
//	kenko stats
//	kenko health
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charlesparmar/kenko"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("KENKO_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: kenko <ask|ingest|stats|health> [flags]")
	}
	cmd, args := os.Args[1], os.Args[2:]

	app, err := kenko.New(
		kenko.WithLogger(logger),
		kenko.WithVersion(version),
	)
	if err != nil {
		return err
	}
	app.Start(ctx)
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}()

	switch cmd {
	case "ask":
		return runAsk(ctx, app, args)
	case "ingest":
		return runIngest(ctx, app)
	case "stats":
		return runStats(ctx, app)
	case "health":
		return app.Healthy(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runAsk(ctx context.Context, app *kenko.App, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	n := fs.Int("n", 5, "number of results")
	hybrid := fs.Bool("hybrid", false, "blend semantic and keyword channels")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: kenko ask [-n 5] [-hybrid] <query>")
	}
	query := fs.Arg(0)

	var (
		results []kenko.Result
		err     error
	)
	if *hybrid {
		results, err = app.HybridSearch(ctx, query, *n)
	} else {
		results, err = app.Retrieve(ctx, query, *n)
	}
	if err != nil {
		return err
	}
	return printJSON(results)
}

func runIngest(ctx context.Context, app *kenko.App) error {
	var doc kenko.Document
	if err := json.NewDecoder(os.Stdin).Decode(&doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	created, err := app.Ingest(ctx, doc)
	if err != nil {
		return err
	}
	return printJSON(created)
}

func runStats(ctx context.Context, app *kenko.App) error {
	stats, err := app.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
