package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/terencetsy/maillayer-contactsync/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "contactsync",
	Short: "Contact sync worker for maillayer",
	Long: `Pulls records from external providers (Airtable-style bases, Google Sheets,
Supabase tables and Firebase-style user directories) into brand contact lists.

Run "contactsync worker" to start the scheduler, job workers and HTTP surface.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
