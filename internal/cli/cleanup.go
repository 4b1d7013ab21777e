package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupQuiet bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run one retention cleanup pass",
	Long: `Runs the cleanup scheduler's retention pass synchronously: evicts
items past the configured caps, reclaims their external blobs, and
invalidates the search engine's caches. Prints the result as JSON.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVarP(&cleanupQuiet, "quiet", "q", false, "suppress the progress spinner")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	f, closeFacade, err := openFacade(ctx)
	if err != nil {
		return err
	}
	defer closeFacade()

	spinner := startCleanupSpinner(cleanupQuiet, "Running cleanup")
	result, err := f.RunCleanup(ctx)
	spinner.stopAndFinish()
	if err != nil {
		return err
	}

	if !cleanupQuiet {
		fmt.Printf("Evicted %s items, reclaimed %s blobs (%d errors) in %.2fs\n",
			formatNumber(result.DeletedCount), formatNumber(result.ReclaimedFiles),
			result.ReclaimErrors, result.Duration.Seconds())
	}
	return printJSON(result)
}
