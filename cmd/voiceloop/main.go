// Voiceloop is a turn-based voice assistant: record a question, transcribe it,
// generate an answer and speak it back.
//
// Usage:
//
//	voiceloop chat [--config path]
//	voiceloop serve [--config path]
//	voiceloop version
//
// @title       voiceloop API
// @version     1.0
// @description Turn-based voice assistant: record, transcribe, answer, speak.
// @BasePath    /
package main

import (
	"os"

	"github.com/spf13/afero"

	_ "github.com/nadzzz/voiceloop/docs"
	"github.com/nadzzz/voiceloop/internal/cli"
)

func main() {
	deps := &cli.Dependencies{
		Fs:  afero.NewOsFs(),
		In:  os.Stdin,
		Out: os.Stdout,
	}
	if err := cli.NewRootCmd(deps).Execute(); err != nil {
		os.Exit(1)
	}
}
