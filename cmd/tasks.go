package cmd

import (
	"fmt"
	"strconv"

	"github.com/maxkimambo/taskflow/internal/demo"
	"github.com/maxkimambo/taskflow/internal/queue"
	"github.com/maxkimambo/taskflow/internal/report"
	"github.com/maxkimambo/taskflow/internal/worker"
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the tasks served by the bundled worker, in prepare order",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := queue.NewLocalBroker(1, 1)
		defer b.Close()

		rt := worker.New(b)
		if err := rt.Register(demo.Handlers()...); err != nil {
			return err
		}

		t := report.NewTable("ORDER", "TASK")
		for i, name := range rt.Tasks() {
			t.AddRow(strconv.Itoa(i+1), name)
		}
		fmt.Fprint(cmd.OutOrStdout(), t.String())
		return nil
	},
}
