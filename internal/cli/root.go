package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates a new root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voiden-scripts",
		Short: "Voiden script runner",
		Long:  `voiden-scripts runs sandboxed pre-request and post-response scripts against request/response fixtures.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				_ = os.Setenv("VOIDEN_LOG", "DEBUG")
			}
			InitLogging()
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	cmd.AddCommand(
		NewRunCmd(),
		NewValidateCmd(),
		NewVersionCmd(),
	)

	return cmd
}
