package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/voiceloop/internal/config"
	"github.com/nadzzz/voiceloop/internal/transport/terminal"
)

func NewChatCmd(deps *Dependencies, opts *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from this terminal",
		Long:  "Start an interactive session: r to record, s to stop, p to play the reply, c to copy the transcript, q to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(deps, opts, func(cfg *config.Config) {
				// The terminal owns stdout.
				cfg.Logging.Output = "stderr"
				if !verbose {
					cfg.Logging.Level = "warn"
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			term := terminal.New(cmd.InOrStdin(), cmd.OutOrStdout())
			defer term.Close()
			return term.Listen(ctx, a.Pipeline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	return cmd
}
