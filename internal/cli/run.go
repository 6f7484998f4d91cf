package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для run'ов. Команды обращаются к процессу scheduler.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger and inspect runs",
	}

	cmd.AddCommand(
		newRunTriggerCmd(clientFn, outputFn),
		newRunStatusCmd(clientFn, outputFn),
	)
	return cmd
}

func newRunTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a run outside of the schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := clientFn().TriggerRun(cmd.Context(), wait)
			if err != nil {
				return err
			}

			out := outputFn()
			if report == nil {
				out.Success("Run started")
				return nil
			}
			if out.IsJSON() {
				out.JSON(report)
				return nil
			}
			printReport(out, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish and print its report")
	return cmd
}

func newRunStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show orchestrator phase and last run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := clientFn().RunStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(status)
				return nil
			}
			out.Fields([][2]string{{"Phase", status.Phase}})
			if status.LastReport != nil {
				fmt.Fprintln(out.w)
				printReport(out, status.LastReport)
			}
			return nil
		},
	}
}

func printReport(out *Output, r *RunReport) {
	result := color.New(color.FgGreen).Sprint("completed")
	switch {
	case r.Skipped:
		result = color.New(color.FgYellow).Sprintf("skipped (%s)", r.SkipReason)
	case r.Error != "" || r.Failed > 0:
		result = color.New(color.FgRed).Sprint("completed with failures")
	}

	conservative := ""
	if r.Conservative {
		conservative = color.New(color.FgYellow).Sprint("yes")
	}

	out.Fields([][2]string{
		{"Run", r.RunID},
		{"Result", result},
		{"Started", r.StartedAt},
		{"Finished", r.FinishedAt},
		{"Conservative", conservative},
		{"Clients", strconv.Itoa(r.Clients)},
		{"Admitted", strconv.Itoa(r.Admitted)},
		{"Not admitted", strconv.Itoa(r.NotAdmitted)},
		{"Succeeded", strconv.Itoa(r.Succeeded)},
		{"Failed", strconv.Itoa(r.Failed)},
		{"Enqueued", strconv.Itoa(r.Enqueued)},
		{"Duplicated", strconv.Itoa(r.Duplicated)},
		{"Error", r.Error},
	})
}
