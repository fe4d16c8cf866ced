package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rainbow979/sticky-mitten-avatar/internal/config"
	"github.com/rainbow979/sticky-mitten-avatar/internal/scenario"
	"github.com/rainbow979/sticky-mitten-avatar/internal/ui"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "play a scripted task sequence against the build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			settings := config.Load()
			sess, err := openSession(cmd.Context(), settings, script.Name)
			if err != nil {
				return err
			}

			results, runErr := scenario.NewRunner(sess.ctrl).Run(cmd.Context(), script)
			mismatches := scenario.Mismatched(results)

			status := "success"
			if runErr != nil || len(mismatches) > 0 {
				status = "failed"
			}
			sess.close(status)

			printResults(results, script)
			if runErr != nil {
				return runErr
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("scenario %q: %d of %d tasks missed their expected status",
					script.Name, len(mismatches), len(script.Tasks))
			}
			return nil
		},
	}
}

func printResults(results []scenario.Result, script *scenario.Script) {
	fmt.Printf("\nscenario %s · %d/%d tasks executed\n\n", script.Name, len(results), len(script.Tasks))
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		expect := r.Expect
		if expect == "" {
			expect = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index), r.Op, ui.StatusLabel(string(r.Status)), expect,
		})
	}
	ui.RenderTable(os.Stdout, []string{"#", "OP", "STATUS", "EXPECT"}, rows)
}
