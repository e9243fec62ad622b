package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/maxkimambo/taskflow/internal/config"
	"github.com/maxkimambo/taskflow/internal/demo"
	"github.com/maxkimambo/taskflow/internal/flow"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/maxkimambo/taskflow/internal/reduce"
	"github.com/maxkimambo/taskflow/internal/report"
	"github.com/spf13/cobra"
)

var (
	reduceMode    string
	reduceTimeout time.Duration
	reduceStats   bool
)

var reduceCmd = &cobra.Command{
	Use:   "reduce [integers...]",
	Short: "Map and reduce integers through an in-process worker",
	Long: `Runs a reduction flow against an in-process queue and worker.

Modes:
  sum        doubles every input, then sums the results pairwise
  intervals  treats the inputs as consecutive bounds b0 b1 ... bn and joins the
             intervals [b0,b1) ... [bn-1,bn) back together; joining is only
             allowed between adjacent intervals, in order

Example:
taskflow reduce 1 2 3 4
taskflow reduce --mode intervals 0 3 5 9 --stall-timeout 2s
`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: validateReduceFlags,
	RunE:    runReduce,
}

func init() {
	reduceCmd.Flags().StringVar(&reduceMode, "mode", "sum", "Reduction to run: sum or intervals")
	reduceCmd.Flags().Int("concurrency", 8, "Number of tasks handled concurrently")
	reduceCmd.Flags().Duration("stall-timeout", 0, "Fail a stalled reduction after this long (0 only logs)")
	reduceCmd.Flags().DurationVar(&reduceTimeout, "timeout", time.Minute, "Overall time limit")
	reduceCmd.Flags().BoolVar(&reduceStats, "stats", false, "Print per-queue statistics after the run")
}

func validateReduceFlags(cmd *cobra.Command, args []string) error {
	switch reduceMode {
	case "sum":
	case "intervals":
		if len(args) < 2 {
			return fmt.Errorf("intervals mode needs at least two bounds, got %d", len(args))
		}
	default:
		return fmt.Errorf("unknown --mode %q, expected sum or intervals", reduceMode)
	}
	if reduceTimeout <= 0 {
		return fmt.Errorf("--timeout must be positive, got %s", reduceTimeout)
	}
	return nil
}

func runReduce(cmd *cobra.Command, args []string) error {
	inputs, err := parseInts(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), reduceTimeout)
	defer cancel()

	eng, err := startEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	logger.User.Starting(fmt.Sprintf("Reducing %d inputs in %s mode...", len(inputs), reduceMode))
	start := time.Now()

	var result string
	switch reduceMode {
	case "intervals":
		var iv demo.Interval
		iv, err = reduceIntervals(ctx, eng, cfg, inputs)
		result = fmt.Sprintf("%s (%d parts)", iv, iv.Parts)
	default:
		var sum int64
		sum, err = reduceSum(ctx, eng, cfg, inputs)
		result = fmt.Sprintf("%d", sum)
	}
	if err != nil {
		return err
	}

	logger.User.Successf("Reduction complete in %s: %s", report.FormatDuration(time.Since(start)), result)
	fmt.Fprintln(cmd.OutOrStdout(), result)
	if reduceStats {
		fmt.Fprint(cmd.OutOrStdout(), report.QueueTable(eng.broker).String())
	}
	return nil
}

func flowOptions(ctx context.Context, c config.Config) []flow.Option {
	return []flow.Option{
		flow.WithContext(ctx),
		flow.WithSubmitBackoff(c.Flow.SubmitBackoff.Gax()),
	}
}

func reduceSum(ctx context.Context, eng *engine, c config.Config, inputs []int64) (int64, error) {
	r, err := reduce.New(eng.registry, flow.NewID("sum"), reduce.Config[int64, int64]{
		Name:          "sum",
		InputLength:   len(inputs),
		MappingTask:   demo.Double(),
		ReductionTask: demo.Sum(),
		Mergeable:     func(int64, int64) bool { return true },
		StallTimeout:  c.Flow.StallTimeout,
		FlowOptions:   flowOptions(ctx, c),
	})
	if err != nil {
		return 0, err
	}
	logger.Op.ForFlow("double", r.ID()).Debug("Sum reduction created")
	return r.Execute(ctx, inputs)
}

func reduceIntervals(ctx context.Context, eng *engine, c config.Config, bounds []int64) (demo.Interval, error) {
	intervals := demo.Intervals(bounds)
	r, err := reduce.New(eng.registry, flow.NewID("intervals"), reduce.Config[demo.Interval, demo.Interval]{
		Name:          "intervals",
		InputLength:   len(intervals),
		MappingTask:   demo.Span(),
		ReductionTask: demo.Concat(),
		Mergeable:     demo.Adjacent,
		StallTimeout:  c.Flow.StallTimeout,
		FlowOptions:   flowOptions(ctx, c),
	})
	if err != nil {
		return demo.Interval{}, err
	}
	logger.Op.ForFlow("span", r.ID()).Debug("Interval reduction created")
	return r.Execute(ctx, intervals)
}
