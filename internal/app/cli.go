// Package app is the bulkcopy command line: flag parsing, config
// precedence and the wiring between the task file, the copy-tool runner and
// the dispatcher.
package app

import (
	"errors"
	"fmt"
	"os"

	config "bulkcopy/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const appName = "bulkcopy"

var version = "1.0.0"

var exitFn = os.Exit

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

type cliOptions struct {
	MaxConcurrent  int
	TimeoutMinutes int
	Strip          []string
	Tool           string
	LogDir         string
	JSONSummary    string

	Cleanup    bool
	Version    bool
	ConfigFile string
}

func Main() {
	Run()
}

// Run is the program entrypoint for cmd/bulkcopy/main.go.
func Run() {
	exitFn(run())
}

func run() int {
	cmd := newRootCommand()
	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s [flags] <tasks-file>", appName),
		Short:         "Run a batch of file transfers with bounded concurrency",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Printf("%s version %s\n", appName, version)
				return nil
			}
			if opts.Cleanup {
				code := runCleanupMode()
				if code == 0 {
					return nil
				}
				return exitError{code: code}
			}

			exitCode := runWithLoggerAndCleanup(func() int {
				v, err := config.NewViper(opts.ConfigFile)
				if err != nil {
					logError(err.Error())
					fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
					return 1
				}

				logInfo("Script started")

				cfg, err := buildRunConfig(cmd, args, opts, v)
				if err != nil {
					logError(err.Error())
					fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
					return 1
				}
				logInfo(fmt.Sprintf("Parsed args: tasks_file=%s, tool=%s, max_concurrent=%d, timeout=%s",
					cfg.TasksFile, cfg.Tool, cfg.MaxConcurrent, cfg.Timeout))
				return runBatch(cfg)
			})

			if exitCode == 0 {
				return nil
			}
			return exitError{code: exitCode}
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	addRootFlags(cmd.Flags(), opts)
	cmd.AddCommand(newVersionCommand(), newCleanupCommand())

	return cmd
}

func addRootFlags(fs *pflag.FlagSet, opts *cliOptions) {
	fs.StringVar(&opts.ConfigFile, "config", "", "Config file path (default: $HOME/.bulkcopy/config.*)")
	fs.BoolVarP(&opts.Version, "version", "v", false, "Print version and exit")
	fs.BoolVar(&opts.Cleanup, "cleanup", false, "Clean up old logs and exit")

	fs.IntVar(&opts.MaxConcurrent, "max-concurrent", config.DefaultMaxConcurrent, "Maximum transfers running at once (also via BULKCOPY_MAX_CONCURRENT)")
	fs.IntVar(&opts.TimeoutMinutes, "timeout", config.DefaultTimeoutMinutes, "Global run timeout in minutes (also via BULKCOPY_TIMEOUT_MINUTES)")
	fs.StringSliceVar(&opts.Strip, "strip", nil, "Substrings removed from source/destination fields, in order")
	fs.StringVar(&opts.Tool, "tool", "", "Copy tool: rclone, robocopy or rsync (default rclone)")
	fs.StringVar(&opts.LogDir, "log-dir", "", "Directory for per-task JSONL logs (default ./bulkcopy-logs)")
	fs.StringVar(&opts.JSONSummary, "json-summary", "", `Write the machine-readable run summary to this file ("-" for stdout)`)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print version and exit",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s version %s\n", appName, version)
			return nil
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "cleanup",
		Short:         "Clean up old logs and exit",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code := runCleanupMode()
			if code == 0 {
				return nil
			}
			return exitError{code: code}
		},
	}
}

func runWithLoggerAndCleanup(fn func() int) (exitCode int) {
	logger, err := NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to initialize logger: %v\n", err)
		return 1
	}
	setLogger(logger)

	defer func() {
		logger := activeLogger()
		if logger != nil {
			logger.Flush()
		}
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: failed to close logger: %v\n", err)
		}
		if logger == nil {
			return
		}

		if exitCode != 0 {
			if entries := logger.ExtractRecentErrors(10); len(entries) > 0 {
				fmt.Fprintln(os.Stderr, "\n=== Recent Errors ===")
				for _, entry := range entries {
					fmt.Fprintln(os.Stderr, entry)
				}
				fmt.Fprintf(os.Stderr, "Log file: %s (deleted)\n", logger.Path())
			}
		}
		_ = logger.RemoveLogFile()
	}()
	defer runCleanupHook()

	// Clean up stale logs from previous runs.
	scheduleStartupCleanup()

	return fn()
}
