package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/techradar/internal/radar"
)

const waitPollInterval = 200 * time.Millisecond

type enqueueOptions struct {
	mode         string
	locale       string
	preset       string
	sources      []string
	lookbackDays int
	htmlFallback bool
	includeSeen  bool
	limits       map[string]int
	maxAttempts  int
	wait         bool
}

func newEnqueueCmd() *cobra.Command {
	opts := enqueueOptions{}
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Creates a run and its job from flags",
		Long: `Creates a running Run and a queued Job in one transaction and prints their ids.
With --wait the command also runs the worker loop in-process until the run
finishes, then prints the finished run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			params := opts.params(cmd.Flags().Changed("html-fallback"))
			maxAttempts := opts.maxAttempts
			if maxAttempts == 0 {
				maxAttempts = a.Config().Worker.MaxAttempts
			}
			out, err := a.Dispatcher().Enqueue(cmd.Context(), params, maxAttempts)
			if err != nil {
				return err
			}
			a.Logger().Info("run enqueued", zap.String("run_id", out.RunID), zap.String("job_id", out.JobID))
			if !opts.wait {
				return writeOutput(cmd, out)
			}

			ctx, stop := context.WithCancel(cmd.Context())
			done := make(chan struct{})
			go func() {
				defer close(done)
				a.Dispatcher().Run(ctx)
			}()
			run, waitErr := waitForRun(ctx, a.Store(), out.RunID)
			stop()
			<-done
			if waitErr != nil {
				return waitErr
			}
			return writeOutput(cmd, run)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", string(radar.ModeReal), "run mode: real or dummy")
	f.StringVar(&opts.locale, "locale", "", "source locale filter: ko, en or all")
	f.StringVar(&opts.preset, "preset", "", "preset id selecting the sources")
	f.StringSliceVar(&opts.sources, "source", nil, "explicit source ids (repeatable)")
	f.IntVar(&opts.lookbackDays, "lookback-days", 0, "only keep items newer than this many days")
	f.BoolVar(&opts.htmlFallback, "html-fallback", true, "scrape HTML when a feed cannot be parsed")
	f.BoolVar(&opts.includeSeen, "include-seen", false, "include already-seen items when reading results")
	f.StringToIntVar(&opts.limits, "limit", nil, "per-category limits, e.g. --limit AI=5,BE=3")
	f.IntVar(&opts.maxAttempts, "max-attempts", 0, "job attempts before the run fails (default worker.max_attempts)")
	f.BoolVar(&opts.wait, "wait", false, "process the run in-process and print the result")
	return cmd
}

func (o enqueueOptions) params(fallbackSet bool) radar.RunParams {
	params := radar.RunParams{
		Mode:         radar.Mode(o.mode),
		Locale:       o.locale,
		PresetID:     o.preset,
		SourceIDs:    o.sources,
		LookbackDays: o.lookbackDays,
		IncludeSeen:  o.includeSeen,
	}
	if fallbackSet {
		enabled := o.htmlFallback
		params.HTMLFallback = &enabled
	}
	if len(o.limits) > 0 {
		params.Limits = make(map[radar.Category]int, len(o.limits))
		for category, limit := range o.limits {
			params.Limits[radar.Category(category)] = limit
		}
	}
	return params
}

func waitForRun(ctx context.Context, runs radar.RunStore, runID string) (radar.Run, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		run, err := runs.GetRun(ctx, runID)
		if err != nil {
			return radar.Run{}, fmt.Errorf("load run %s: %w", runID, err)
		}
		if run.Status != radar.RunStatusRunning {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return radar.Run{}, errors.Join(fmt.Errorf("run %s still running", runID), ctx.Err())
		case <-ticker.C:
		}
	}
}

func writeOutput(cmd *cobra.Command, payload any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
