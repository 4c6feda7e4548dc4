// Package commands provides the aichat terminal client.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

// Version info (set at build time)
var Version = "0.1.0"

// NewRootCmd builds the command tree around deps.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	root := &cobra.Command{
		Use:   "aichat",
		Short: "Chat with an AI persona from the terminal",
		Long: `aichat talks to a streaming chat-completions API as a configurable persona
and keeps every conversation on disk.

Examples:
  aichat chat                          Start a new conversation
  aichat chat --session 2025-03-01_10-00-00
  aichat chat --persona socrates       Start with a preset persona
  aichat sessions list                 List saved conversations
  aichat personas                      List preset personas`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetIn(deps.In)
	root.SetOut(deps.Out)
	root.SetErr(deps.Err)

	root.AddCommand(newChatCmd(deps))
	root.AddCommand(newSessionsCmd(deps))
	root.AddCommand(newPersonasCmd(deps))
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd(NewDependencies()).Execute(); err != nil {
		os.Exit(1)
	}
}
