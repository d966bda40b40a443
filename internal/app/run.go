package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	config "bulkcopy/internal/config"
	copytool "bulkcopy/internal/copytool"
	dispatch "bulkcopy/internal/dispatch"
	report "bulkcopy/internal/report"
	taskfile "bulkcopy/internal/taskfile"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultLogDir = "bulkcopy-logs"

type runConfig struct {
	TasksFile     string
	MaxConcurrent int
	Timeout       time.Duration
	Strip         []string
	Tool          string
	LogDir        string
	JSONSummary   string
}

// buildRunConfig resolves every setting with flag > environment > config
// file precedence. Viper reads BULKCOPY_* automatically, so a non-flag
// lookup already prefers the environment over the file.
func buildRunConfig(cmd *cobra.Command, args []string, opts *cliOptions, v *viper.Viper) (*runConfig, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("exactly one tasks file required")
	}
	tasksFile := strings.TrimSpace(args[0])
	if tasksFile == "" {
		return nil, fmt.Errorf("tasks file path must not be empty")
	}

	cfg := &runConfig{TasksFile: tasksFile}

	switch {
	case cmd.Flags().Changed("max-concurrent"):
		if opts.MaxConcurrent < 1 {
			return nil, fmt.Errorf("--max-concurrent must be at least 1")
		}
		cfg.MaxConcurrent = opts.MaxConcurrent
	default:
		if n := v.GetInt("max-concurrent"); n > 0 {
			cfg.MaxConcurrent = n
		} else {
			cfg.MaxConcurrent = config.ResolveMaxConcurrent()
		}
	}
	if cfg.MaxConcurrent > config.MaxConcurrentLimit {
		cfg.MaxConcurrent = config.MaxConcurrentLimit
	}

	switch {
	case cmd.Flags().Changed("timeout"):
		if opts.TimeoutMinutes < 1 {
			return nil, fmt.Errorf("--timeout must be at least 1 minute")
		}
		cfg.Timeout = time.Duration(opts.TimeoutMinutes) * time.Minute
	default:
		if n := v.GetInt("timeout"); n > 0 {
			cfg.Timeout = time.Duration(n) * time.Minute
		} else {
			cfg.Timeout = config.ResolveTimeout()
		}
	}

	if cmd.Flags().Changed("strip") {
		cfg.Strip = opts.Strip
	} else {
		cfg.Strip = v.GetStringSlice("strip")
	}

	if cmd.Flags().Changed("tool") {
		cfg.Tool = strings.TrimSpace(opts.Tool)
		if cfg.Tool == "" {
			return nil, fmt.Errorf("--tool flag requires a value")
		}
	} else {
		cfg.Tool = strings.TrimSpace(v.GetString("tool"))
	}

	if cmd.Flags().Changed("log-dir") {
		cfg.LogDir = strings.TrimSpace(opts.LogDir)
		if cfg.LogDir == "" {
			return nil, fmt.Errorf("--log-dir flag requires a value")
		}
	} else if val := strings.TrimSpace(v.GetString("log-dir")); val != "" {
		cfg.LogDir = val
	} else {
		cfg.LogDir = defaultLogDir
	}

	if cmd.Flags().Changed("json-summary") {
		cfg.JSONSummary = strings.TrimSpace(opts.JSONSummary)
		if cfg.JSONSummary == "" {
			return nil, fmt.Errorf("--json-summary flag requires a value")
		}
	} else {
		cfg.JSONSummary = strings.TrimSpace(v.GetString("json-summary"))
	}

	return cfg, nil
}

// runBatch is the whole transfer run: parse the task file, dispatch with
// bounded concurrency, persist outcomes and print the summary. Returns the
// process exit code.
func runBatch(cfg *runConfig) int {
	descs, parseErrs, err := taskfile.LoadFile(cfg.TasksFile, cfg.Strip)
	if err != nil {
		logError(err.Error())
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, pe := range parseErrs {
		logWarn("task file: " + pe.Error())
	}
	if len(descs) == 0 && len(parseErrs) == 0 {
		fmt.Fprintln(os.Stderr, "no tasks to run")
		return 0
	}

	tool, err := copytool.Select(cfg.Tool)
	if err != nil {
		logError(err.Error())
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	copytool.SetLogFuncs(logWarn, logInfo)

	sink, err := report.NewSink(cfg.LogDir, descs, logError)
	if err != nil {
		logError(err.Error())
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	logger := activeLogger()
	if logger == nil {
		fmt.Fprintln(os.Stderr, "ERROR: logger is not initialized")
		return 1
	}

	fmt.Fprintf(os.Stderr, "[%s]\n", appName)
	fmt.Fprintf(os.Stderr, "  Tool: %s\n", tool.Name())
	fmt.Fprintf(os.Stderr, "  Tasks: %d (max %d concurrent, timeout %s)\n", len(descs), cfg.MaxConcurrent, cfg.Timeout)
	fmt.Fprintf(os.Stderr, "  PID: %d\n", os.Getpid())
	fmt.Fprintf(os.Stderr, "  Log: %s\n", logger.Path())

	progress := report.NewProgress(os.Stderr)
	d := dispatch.New(copytool.NewRunner(tool), dispatch.Options{
		MaxConcurrency: cfg.MaxConcurrent,
		Timeout:        cfg.Timeout,
		Observer:       runObserver{progress: progress, sink: sink},
	})

	logInfo(fmt.Sprintf("%s running %d task(s)...", tool.Name(), len(descs)))
	run := d.Run(context.Background(), descs)
	progress.Close()

	fmt.Print(sink.Summarize(run, parseErrs))

	if cfg.JSONSummary != "" {
		if err := writeJSONSummary(cfg.JSONSummary, sink, run, parseErrs); err != nil {
			logError(err.Error())
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return 1
		}
	}

	if run.AllCompleted() && len(parseErrs) == 0 {
		return 0
	}
	return 1
}

func writeJSONSummary(path string, sink *report.Sink, run *dispatch.Run, parseErrs []taskfile.ParseError) error {
	if path == "-" {
		return sink.WriteSummaryJSON(os.Stdout, run, parseErrs)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file %s: %w", path, err)
	}
	defer f.Close()
	return sink.WriteSummaryJSON(f, run, parseErrs)
}

// runObserver fans dispatcher events out to the console progress reporter
// and the per-task JSONL sink.
type runObserver struct {
	progress *report.Progress
	sink     *report.Sink
}

func (o runObserver) TaskAdmitted(index, launched, total int) {
	o.progress.TaskAdmitted(index, launched, total)
}

func (o runObserver) TaskFinalized(out dispatch.Outcome, completed, total int) {
	o.progress.TaskFinalized(out, completed, total)
	o.sink.Persist(out)
}
