package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [product-id]",
	Short: "Show the recorded prices of an ingested product",
	Long:  "Show the recorded prices of an ingested product, newest first. Needs a persistent store (--store postgres).",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum points")
	historyCmd.Flags().String("format", "table", "Output format: json, table")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid product id %q", args[0])
	}
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")

	svc, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	points, err := svc.store.PriceHistory(cmd.Context(), id, limit)
	if err != nil {
		return fmt.Errorf("price history: %w", err)
	}
	if format == "json" {
		return printJSON(os.Stdout, points)
	}
	printHistory(os.Stdout, points)
	return nil
}
