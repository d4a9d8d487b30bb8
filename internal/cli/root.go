package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskstream",
	Short: "Interactive session driver for the multi-phase task pipeline",
	Long: `taskstream drives an interactive session against a multi-phase AI task
pipeline (reasoning, planning, execution, summarization). It streams phase
transitions into a conversation transcript, prompts for any inputs the
pipeline pauses on, and reconciles terminal state by polling after a resume.

Running 'taskstream' without a subcommand is equivalent to 'taskstream chat'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the 'chat' command
		return chatCmd.RunE(cmd, args)
	},
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to taskstream.json config file (default: search up directory tree)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
