package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dhammafm",
	Short: "DhammaFM is a dhamma-talk listening daemon.",
	Long: `DhammaFM follows the dhammatalks.org evening and morning talk feeds,
remembers listening progress per talk, keeps an offline library of downloaded
and auto-cached audio, and starts talks on a weekly schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
