// Package app orchestrates full extraction runs around the core pipeline:
// load a batch file, stream outcomes with progress reporting, export JSON.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/shpitdev/unusual-requirements/internal/pipeline"
	"github.com/shpitdev/unusual-requirements/internal/util"
)

type Config struct {
	InputPath  string
	OutputPath string

	// ShowProgress renders an interactive terminal progress bar in addition
	// to the log lines. Keep it off for non-TTY runs.
	ShowProgress bool

	// Logger defaults to stdout with standard flags.
	Logger *log.Logger
}

// RunLocal reads a local input JSON batch, streams the pipeline over it, and
// writes the outcome export. Per-record failures are data, not errors: the
// run only fails on structural problems (unreadable input, malformed batch,
// unwritable output).
func RunLocal(ctx context.Context, cfg Config, p *pipeline.Pipeline) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}
	runStart := time.Now()

	inF, err := os.Open(cfg.InputPath)
	if err != nil {
		return err
	}
	records, err := pipeline.ReadRecords(inF)
	_ = inF.Close()
	if err != nil {
		return err
	}

	total := len(records)
	considered := total
	if limit := p.MaxRecords(); considered > limit {
		considered = limit
		logf("input has %d records; only the first %d are considered", total, limit)
	}
	logf("local run start: input=%s output=%s records=%d considered=%d", cfg.InputPath, cfg.OutputPath, total, considered)

	var bar *pterm.ProgressbarPrinter
	if cfg.ShowProgress && considered > 0 {
		bar, err = pterm.DefaultProgressbar.WithTotal(considered).WithTitle("Extracting").Start()
		if err != nil {
			return err
		}
	}

	var outcomes []pipeline.Outcome
	extracted := 0
	empty := 0
	failed := 0
	for outcome := range p.Run(ctx, records) {
		status := "ok"
		switch {
		case outcome.Failed():
			status = "error"
			failed++
			logf(
				"record failed: number=%s error=%q completed=%d/%d elapsed=%s",
				outcome.Number,
				util.RedactSecrets(outcome.Err.Error()),
				len(outcomes)+1,
				considered,
				time.Since(runStart).Round(time.Millisecond),
			)
		case outcome.OriginalComment == "":
			status = "empty"
			empty++
		default:
			extracted++
		}
		if status != "error" {
			logf(
				"record processed: number=%s status=%s requirements=%d completed=%d/%d elapsed=%s",
				outcome.Number,
				status,
				len(outcome.Requirements),
				len(outcomes)+1,
				considered,
				time.Since(runStart).Round(time.Millisecond),
			)
		}

		outcomes = append(outcomes, outcome)
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		_, _ = bar.Stop()
	}

	logf(
		"extraction complete: produced=%d extracted=%d empty=%d failed=%d duration=%s",
		len(outcomes),
		extracted,
		empty,
		failed,
		time.Since(runStart).Round(time.Millisecond),
	)

	outF, err := os.Create(cfg.OutputPath)
	if err != nil {
		return err
	}
	if err := pipeline.WriteOutcomes(outF, outcomes); err != nil {
		_ = outF.Close()
		return err
	}
	if err := outF.Close(); err != nil {
		return err
	}

	logf("local run complete: output=%s totalDuration=%s", cfg.OutputPath, time.Since(runStart).Round(time.Millisecond))
	return nil
}
