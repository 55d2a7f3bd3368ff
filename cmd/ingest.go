package cmd

import (
	"fmt"
	"os"

	"github.com/lukman83/pricealert/internal/equivalence"
	"github.com/lukman83/pricealert/internal/ingest"
	"github.com/lukman83/pricealert/internal/progress"
	"github.com/lukman83/pricealert/internal/ui"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [url]",
	Short: "Extract a product from a store URL and record its price",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().Bool("market", false, "Also look up the product on other stores")
	ingestCmd.Flags().Int("max", equivalence.DefaultMaxResults, "Maximum market offers")
	ingestCmd.Flags().String("format", "table", "Output format: json, table")
	rootCmd.AddCommand(ingestCmd)
}

type ingestOutput struct {
	ingest.Result
	Market *ingest.Snapshot `json:"market,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	market, _ := cmd.Flags().GetBool("market")
	maxResults, _ := cmd.Flags().GetInt("max")
	format, _ := cmd.Flags().GetString("format")

	svc, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	spin := ui.NewSpinner()
	spin.Start(fmt.Sprintf("Ingesting %s...", args[0]))
	defer spin.Stop()
	ctx := progress.With(cmd.Context(), spin.Update)

	res, err := svc.ingest.Ingest(ctx, args[0])
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	out := ingestOutput{Result: res}
	if market {
		spin.Update("Looking for the same product on other stores...")
		snap, err := svc.ingest.SnapshotMarket(ctx, res.ProductID, res.Canonical, res.Title, maxResults)
		if err != nil {
			return fmt.Errorf("market lookup failed: %w", err)
		}
		out.Market = &snap
	}
	spin.Stop()

	if format == "json" {
		return printJSON(os.Stdout, out)
	}
	printIngest(os.Stdout, res)
	if out.Market != nil {
		fmt.Fprintln(os.Stdout)
		printMarket(os.Stdout, out.Market.Result)
	}
	return nil
}
