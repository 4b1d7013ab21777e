package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print clipboard store statistics",
	Long:  `Prints item counts and inline/external/thumbnail byte totals as JSON.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f, closeFacade, err := openFacade(ctx)
	if err != nil {
		return err
	}
	defer closeFacade()

	stats, err := f.GetStats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}
