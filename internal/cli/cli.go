package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/specialistvlad/pipegrid/internal/app"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
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

// usageError wraps err as an ExitError with the usage exit code.
func usageError(err error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// ExitCode maps an error from Parse or App.Run to a process exit code.
func ExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, app.ErrInvalid):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// paramFlag collects repeated -p key=value flags.
type paramFlag map[string]string

func (p paramFlag) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p paramFlag) Set(s string) error {
	key, val, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("parameter %q must look like name=value", s)
	}
	p[key] = val
	return nil
}

// flagKeys maps flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"definition":    "definition",
	"d":             "definition",
	"dry-run":       "dry_run",
	"max-parallel":  "max_parallel",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"output-dir":    "output.dir",
	"report-format": "report.format",
	"report-path":   "report.path",
	"archive":       "archive.kind",
	"archive-dir":   "archive.dir",
	"server-port":   "server.port",
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Flags override PIPEGRID_* environment variables, which override the
// optional config file.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("pipegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Pipegrid - runs matrix CI pipelines on pools of agents.

Usage:
  pipegrid [options] [DEFINITION]

Arguments:
  DEFINITION
    Path to a .yaml/.yml pipeline, a .hcl file, or a directory of .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFile := flagSet.String("config", "", "Path to a config file (yaml, toml or json).")
	flagSet.String("definition", "", "Path to the pipeline definition.")
	flagSet.String("d", "", "Path to the pipeline definition (shorthand).")
	params := paramFlag{}
	flagSet.Var(params, "p", "Pipeline parameter as name=value. Repeatable.")
	flagSet.Bool("dry-run", false, "Print the expanded plan without running anything.")
	flagSet.Int("max-parallel", 0, "Upper bound on concurrently running instances. 0 is unbounded.")
	flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flagSet.String("output-dir", "", "Directory for full step output. Empty keeps only the tail.")
	flagSet.String("report-format", "json", "Report format. Options: 'json' or 'yaml'.")
	flagSet.String("report-path", "", "Write the report to this file instead of stdout.")
	flagSet.String("archive", "", "Archive the report. Options: 'file' or 's3'.")
	flagSet.String("archive-dir", ".pipegrid/runs", "Directory used by the 'file' archive.")
	flagSet.Int("server-port", 0, "Port for the HTTP control server. 0 is disabled.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError(err)
	}
	slog.Debug("Arguments parsed successfully.")

	v := app.NewViper()
	var setErr error
	flagSet.Visit(func(f *flag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			setErr = fmt.Errorf("flag -%s has no value", f.Name)
			return
		}
		v.Set(key, getter.Get())
	})
	if setErr != nil {
		return nil, false, usageError(setErr)
	}
	if flagSet.NArg() > 1 {
		return nil, false, usageError(fmt.Errorf("expected one definition path, got %d", flagSet.NArg()))
	}
	if flagSet.NArg() == 1 {
		v.Set("definition", flagSet.Arg(0))
	}

	if *configFile == "" && v.GetString("definition") == "" {
		slog.Debug("No definition provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	cfg, err := app.LoadConfig(v, *configFile)
	if err != nil {
		return nil, false, usageError(err)
	}
	// Parameters set on the command line win over those from the file.
	if len(params) > 0 {
		if cfg.Parameters == nil {
			cfg.Parameters = make(map[string]string, len(params))
		}
		maps.Copy(cfg.Parameters, params)
	}
	slog.Debug("CLI parser finished successfully.", "definition", cfg.Definition)
	return cfg, false, nil
}
