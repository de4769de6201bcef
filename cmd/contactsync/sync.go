package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var syncID string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <integration-id>",
	Short: "Queue a manual sync run",
	Long: `Queue a manual run of one TableSync. Manual runs ignore the autoSync flag.
Omit --sync for integrations with a single implicit sync (identity providers).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		job, err := a.syncService.EnqueueSync(cmd.Context(), args[0], optionalFlag(syncID))
		if err != nil {
			return err
		}
		fmt.Printf("Enqueued job %s (%s)\n", job.ID, job.JobKey)
		return nil
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <integration-id>",
	Short: "Print the result of the last completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.syncService.GetLastResult(cmd.Context(), args[0], optionalFlag(syncID))
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Println("Sync has not completed yet")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Process every due job once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		publisher, err := a.newPublisher()
		if err != nil {
			return err
		}
		defer closePublisher(publisher)

		a.newWatcher(publisher).RunOnce(cmd.Context())
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&syncID, "sync", "", "table sync ID")
	resultCmd.Flags().StringVar(&syncID, "sync", "", "table sync ID")
	rootCmd.AddCommand(enqueueCmd, resultCmd, runOnceCmd)
}

func optionalFlag(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
