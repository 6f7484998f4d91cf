package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewStateCmd создаёт группу команд для scheduler_state.
func NewStateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect scheduler state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show CLIENT",
		Short: "Show scheduler state of a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := clientFn().GetState(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(state)
				return nil
			}
			out.Fields([][2]string{
				{"Client", state.ClientID},
				{"Instagram", strconv.Itoa(state.LastCounts.Instagram)},
				{"TikTok", strconv.Itoa(state.LastCounts.TikTok)},
				{"Last notified", state.LastNotifiedAt},
				{"Last slot", state.LastNotifiedSlot},
				{"Updated", state.UpdatedAt},
			})
			return nil
		},
	})
	return cmd
}
