package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	userID string
	a      *app
)

var rootCmd = &cobra.Command{
	Use:           "fincore",
	Short:         "Personal finance ledger maintenance",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		a, err = newApp(cmd.Context())
		return err
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id (empty means every user where supported)")

	importCmd.Flags().String("target", "", "Re-key the backup to this user id")
	migrateGuestCmd.Flags().String("guest", "", "Guest user id")
	migrateGuestCmd.Flags().String("to", "", "Authenticated user id")
	_ = migrateGuestCmd.MarkFlagRequired("guest")
	_ = migrateGuestCmd.MarkFlagRequired("to")
	verifyCmd.Flags().String("account", "", "Verify a single account")
	verifyCmd.Flags().Bool("rebuild", false, "Rewrite mismatching balances from the transaction log")
	statsCmd.Flags().String("at", "", "Reference date (YYYY-MM-DD, default today)")
	adjustCmd.Flags().String("to", "", "Target balance")
	adjustCmd.Flags().String("note", "", "Description of the adjustment")
	_ = adjustCmd.MarkFlagRequired("to")
	archiveCmd.Flags().String("before", "", "Archive transactions dated before this day (YYYY-MM-DD)")
	_ = archiveCmd.MarkFlagRequired("before")

	rootCmd.AddCommand(exportCmd, importCmd, migrateGuestCmd, recalcCmd, verifyCmd, statsCmd, goalsCmd, adjustCmd, archiveCmd)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func main() {
	err := rootCmd.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
