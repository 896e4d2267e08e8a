package cli

import (
	"mailcal/pkg/config"
	"mailcal/pkg/logger"

	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mailcal",
	Short: "Turn unread mail into calendar events",
	Long: `mailcal polls a mailbox for unread mail, asks a language model to extract
an event from each message and inserts it into a calendar. Every mail is
handled at most once.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Setup(cfg.LogLevel, cfg.LogPretty)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(processedCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}
