package cli

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nadzzz/voiceloop/internal/app"
	"github.com/nadzzz/voiceloop/internal/config"
	"github.com/nadzzz/voiceloop/internal/version"
)

// Dependencies are the process-level resources commands run against.
type Dependencies struct {
	Fs  afero.Fs
	In  io.Reader
	Out io.Writer
}

type rootOptions struct {
	configFile string
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "voiceloop",
		Short:        "Talk to a local assistant: record, transcribe, answer, speak",
		Long:         "voiceloop records a spoken question, transcribes it with a Whisper-compatible server, answers it with an LLM and speaks the answer through Piper.",
		SilenceUsage: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.SetIn(deps.In)
	rootCmd.SetOut(deps.Out)

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to config file (e.g. configs/voiceloop.yaml)")

	rootCmd.AddCommand(NewServeCmd(deps, opts))
	rootCmd.AddCommand(NewChatCmd(deps, opts))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}

// build loads configuration, applies logging overrides and wires the app.
func build(deps *Dependencies, opts *rootOptions, adjust func(*config.Config)) (*app.App, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if adjust != nil {
		adjust(cfg)
	}
	config.SetupLogging(cfg.Logging)

	a, err := app.New(cfg, deps.Fs)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}
