package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rainbow979/sticky-mitten-avatar/internal/config"
	"github.com/rainbow979/sticky-mitten-avatar/internal/store"
	"github.com/rainbow979/sticky-mitten-avatar/internal/ui"
)

func newReplayCmd() *cobra.Command {
	var (
		trajectory bool
		remove     bool
	)

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "inspect recorded runs without a build connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			settings := config.Load()
			st, err := store.Open(settings.StoreDir())
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 0 {
				if remove {
					return fmt.Errorf("--delete needs a run ID")
				}
				runs, err := st.Runs()
				if err != nil {
					return err
				}
				printRuns(os.Stdout, runs)
				return nil
			}
			if remove {
				return deleteRun(os.Stdout, st, args[0])
			}
			return printRun(os.Stdout, st, args[0], trajectory)
		},
	}
	cmd.Flags().BoolVar(&trajectory, "trajectory", false, "dump every recorded step of the run")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the run and its records instead of printing it")
	return cmd
}

func deleteRun(w io.Writer, st *store.Store, runID string) error {
	meta, err := resolveRun(st, runID)
	if err != nil {
		return err
	}
	if err := st.DeleteRun(meta.ID); err != nil {
		return err
	}
	fmt.Fprintf(w, "deleted run %s (%d steps, %d tasks)\n", shortID(meta.ID), meta.TotalSteps, meta.Tasks)
	return nil
}

func printRuns(w io.Writer, runs []store.RunMeta) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no recorded runs")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID), r.StartedAt, r.Scenario, ui.StatusLabel(r.Status),
			strconv.Itoa(r.TotalSteps), strconv.Itoa(r.Tasks),
		})
	}
	ui.RenderTable(w, []string{"RUN", "STARTED", "SCENARIO", "STATUS", "STEPS", "TASKS"}, rows)
}

func printRun(w io.Writer, st *store.Store, runID string, trajectory bool) error {
	meta, err := resolveRun(st, runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "run %s · %s · scenario %s · %s · %d steps\n\n",
		shortID(meta.ID), meta.StartedAt, meta.Scenario, ui.StatusLabel(meta.Status), meta.TotalSteps)

	tasks, err := st.Tasks(meta.ID)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			strconv.Itoa(t.Seq), t.Task, t.Arm, t.Target,
			ui.StatusLabel(t.Status), strconv.Itoa(t.Steps),
		})
	}
	ui.RenderTable(w, []string{"#", "TASK", "ARM", "TARGET", "STATUS", "STEPS"}, rows)

	if !trajectory {
		return nil
	}
	steps, err := st.Steps(meta.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\ntrajectory · %d steps\n\n", len(steps))
	srows := make([][]string, 0, len(steps))
	for _, s := range steps {
		srows = append(srows, []string{
			strconv.Itoa(s.Seq), strconv.FormatInt(s.Frame, 10), s.Task,
			fmt.Sprintf("%.2f", s.Position.X), fmt.Sprintf("%.2f", s.Position.Z),
			fmt.Sprintf("%.1f", s.Heading), s.Collision,
		})
	}
	ui.RenderTable(w, []string{"SEQ", "FRAME", "TASK", "X", "Z", "HEADING", "COLLISION"}, srows)
	return nil
}

// resolveRun accepts a full run ID or any unique prefix of one.
func resolveRun(st *store.Store, runID string) (store.RunMeta, error) {
	if meta, err := st.RunByID(runID); err == nil {
		return meta, nil
	}
	runs, err := st.Runs()
	if err != nil {
		return store.RunMeta{}, err
	}
	var match *store.RunMeta
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, runID) {
			if match != nil {
				return store.RunMeta{}, fmt.Errorf("run prefix %q is ambiguous", runID)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return store.RunMeta{}, fmt.Errorf("no run %q", runID)
	}
	return *match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
