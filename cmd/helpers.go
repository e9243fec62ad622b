package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/maxkimambo/taskflow/internal/config"
	"github.com/maxkimambo/taskflow/internal/connection"
	"github.com/maxkimambo/taskflow/internal/demo"
	"github.com/maxkimambo/taskflow/internal/queue"
	"github.com/maxkimambo/taskflow/internal/worker"
	"github.com/spf13/cobra"
)

// loadConfig reads --config, if set, and applies the flags the user changed
// on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		c = loaded
	}

	flags := cmd.Flags()
	if debug || verbose {
		c.Log.Verbose = true
		c.Log.Quiet = false
	}
	if flags.Changed("json") {
		c.Log.JSON = jsonLogs
	}
	if flags.Changed("quiet") {
		c.Log.Quiet = quiet
	}
	if flags.Changed("concurrency") {
		n, _ := flags.GetInt("concurrency")
		c.Queue.Concurrency = n
		c.Worker.Concurrency = n
	}
	if flags.Changed("stall-timeout") {
		d, _ := flags.GetDuration("stall-timeout")
		c.Flow.StallTimeout = d
	}

	if err := c.Validate(); err != nil {
		return config.Config{}, err
	}
	return c, nil
}

func parseInts(args []string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", a, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// engine is an in-process broker with a worker serving the demo tasks.
type engine struct {
	broker   *queue.LocalBroker
	runtime  *worker.Runtime
	registry *connection.Registry
}

func startEngine(ctx context.Context, c config.Config) (*engine, error) {
	b := queue.NewLocalBroker(c.Queue.Capacity, c.Queue.Concurrency)
	rt := worker.New(b, worker.WithConcurrency(c.Worker.Concurrency))
	if err := rt.Register(demo.Handlers()...); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := rt.Start(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return &engine{broker: b, runtime: rt, registry: connection.NewRegistry(b)}, nil
}

func (e *engine) Close() {
	e.runtime.Stop()
	_ = e.broker.Close()
}
