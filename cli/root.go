package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the hxstream CLI.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hxstream",
		Short: "hxstream relays a live screen region between two machines",
		Long: `hxstream captures a region of the local display, compresses each frame,
and streams it to a fixed peer over TCP, UDP, or a brokered WebRTC data
channel. The receiver reconstructs the stream and can show it in a viewer
window or just report throughput.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(SenderCommand())
	rootCmd.AddCommand(ReceiverCommand())
	return rootCmd
}
