package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/lukman83/pricealert/internal/progress"
	"github.com/lukman83/pricealert/internal/search"
	"github.com/lukman83/pricealert/internal/ui"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search a product by name across the supported stores",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", search.DefaultNameResults, "Maximum results")
	searchCmd.Flags().String("format", "table", "Output format: json, table")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")

	svc, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	spin := ui.NewSpinner()
	spin.Start(fmt.Sprintf("Searching '%s'...", query))
	ctx := progress.With(cmd.Context(), spin.Update)
	results, err := svc.names.Search(ctx, query, limit)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if format == "json" {
		return printJSON(os.Stdout, results)
	}
	printSearchResults(os.Stdout, results)
	return nil
}
