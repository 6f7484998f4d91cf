package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewOutboxCmd создаёт группу команд для outbox.
func NewOutboxCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the notification outbox",
	}

	cmd.AddCommand(
		newOutboxListCmd(clientFn, outputFn),
		newOutboxShowCmd(clientFn, outputFn),
		newOutboxRequeueCmd(clientFn, outputFn),
		newOutboxStatsCmd(clientFn, outputFn),
	)
	return cmd
}

func newOutboxListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOutboxOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			events, err := clientFn().ListOutbox(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "CLIENT", "DESTINATION", "STATUS", "ATTEMPTS", "NEXT_ATTEMPT", "ERROR"}
			rows := make([][]string, len(events))
			for i, e := range events {
				rows[i] = []string{
					e.ID,
					e.ClientID,
					e.Destination,
					Status(e.Status),
					fmt.Sprintf("%d/%d", e.AttemptCount, e.MaxAttempts),
					e.NextAttemptAt,
					shorten(e.ErrorMessage, 40),
				}
			}

			outputFn().Print(headers, rows, events)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, processing, retrying, sent, dead_letter)")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "Filter by client ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip first N results")
	return cmd
}

func newOutboxShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an outbox row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := clientFn().GetOutbox(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(event)
				return nil
			}
			printOutbox(out, event)
			return nil
		},
	}
}

func newOutboxRequeueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue ID",
		Short: "Move a dead-lettered row back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := clientFn().RequeueOutbox(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(event)
				return nil
			}
			out.Success(fmt.Sprintf("Requeued %s (client %s)", event.ID, event.ClientID))
			return nil
		},
	}
}

func newOutboxStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := clientFn().OutboxStats(cmd.Context())
			if err != nil {
				return err
			}

			statuses := make([]string, 0, len(stats.Counts))
			for s := range stats.Counts {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)

			rows := make([][]string, 0, len(statuses)+1)
			for _, s := range statuses {
				rows = append(rows, []string{Status(s), strconv.Itoa(stats.Counts[s])})
			}
			rows = append(rows, []string{"total", strconv.Itoa(stats.Total)})

			outputFn().Print([]string{"STATUS", "COUNT"}, rows, stats)
			return nil
		},
	}
}

func printOutbox(out *Output, e *OutboxResponse) {
	out.Fields([][2]string{
		{"ID", e.ID},
		{"Client", e.ClientID},
		{"Destination", e.Destination},
		{"Status", Status(e.Status)},
		{"Attempts", fmt.Sprintf("%d/%d", e.AttemptCount, e.MaxAttempts)},
		{"Next attempt", e.NextAttemptAt},
		{"Created", e.CreatedAt},
		{"Last attempt", e.LastAttemptAt},
		{"Sent", e.SentAt},
		{"Error", e.ErrorMessage},
		{"Key", e.IdempotencyKey},
	})
	fmt.Fprintf(out.w, "\n%s\n", e.Message)
}

// shorten обрезает строку до n рун.
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
