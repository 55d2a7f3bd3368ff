package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/lukman83/pricealert/internal/equivalence"
	"github.com/lukman83/pricealert/internal/models"
	"github.com/lukman83/pricealert/internal/progress"
	"github.com/lukman83/pricealert/internal/ui"
	"github.com/spf13/cobra"
)

var equivalentsCmd = &cobra.Command{
	Use:   "equivalents",
	Short: "Find the same product on other stores",
	Example: `  pricealert equivalents --gtin 7891234567895 --title "Fone JBL Tune 510BT"
  pricealert equivalents --brand JBL --model "Tune 510BT" --title "Fone JBL Tune 510BT"`,
	Args: cobra.NoArgs,
	RunE: runEquivalents,
}

func init() {
	equivalentsCmd.Flags().String("gtin", "", "EAN/GTIN barcode")
	equivalentsCmd.Flags().String("mpid", "", "Store listing id (ASIN or MLB id)")
	equivalentsCmd.Flags().String("brand", "", "Brand name")
	equivalentsCmd.Flags().String("model", "", "Model name or number")
	equivalentsCmd.Flags().String("title", "", "Product title")
	equivalentsCmd.Flags().Int("max", equivalence.DefaultMaxResults, "Maximum offers")
	equivalentsCmd.Flags().String("format", "table", "Output format: json, table")
	rootCmd.AddCommand(equivalentsCmd)
}

func runEquivalents(cmd *cobra.Command, args []string) error {
	var ids models.CanonicalIDs
	ids.GTIN, _ = cmd.Flags().GetString("gtin")
	ids.MarketplaceID, _ = cmd.Flags().GetString("mpid")
	ids.Brand, _ = cmd.Flags().GetString("brand")
	ids.Model, _ = cmd.Flags().GetString("model")
	title, _ := cmd.Flags().GetString("title")
	maxResults, _ := cmd.Flags().GetInt("max")
	format, _ := cmd.Flags().GetString("format")

	if ids.IsZero() && title == "" {
		return errors.New("one of --gtin, --mpid, --brand/--model or --title is required")
	}

	svc, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	spin := ui.NewSpinner()
	spin.Start("Searching other stores...")
	ctx := progress.With(cmd.Context(), spin.Update)
	res, err := svc.resolver.FindEquivalents(ctx, ids, title, maxResults)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("equivalence search failed: %w", err)
	}

	if format == "json" {
		return printJSON(os.Stdout, res)
	}
	printMarket(os.Stdout, res)
	return nil
}
