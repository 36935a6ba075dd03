package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/pipegrid/internal/app"
	"github.com/specialistvlad/pipegrid/internal/cli"
	"github.com/specialistvlad/pipegrid/internal/report"
)

// main is the entrypoint for the pipegrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.ExitCode(err))
}

// run encapsulates the main application logic for easier testing and error
// handling. Reports go to outW, logs to logW. An interrupt aborts the run.
func run(ctx context.Context, outW, logW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	rep, err := app.NewApp(outW, logW, cfg).Run(ctx)
	if err != nil {
		return err
	}
	if rep != nil && rep.ExitCode() != report.ExitSucceeded {
		return &cli.ExitError{Code: rep.ExitCode(), Message: fmt.Sprintf("pipeline %s %s", rep.Pipeline, rep.Status)}
	}
	return nil
}
