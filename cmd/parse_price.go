package cmd

import (
	"fmt"
	"strings"

	"github.com/lukman83/pricealert/internal/price"
	"github.com/spf13/cobra"
)

var parsePriceCmd = &cobra.Command{
	Use:     "parse-price [text]",
	Short:   "Parse a BRL price from free text",
	Example: `  pricealert parse-price "R$ 1.299,90 à vista"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runParsePrice,
}

func init() {
	rootCmd.AddCommand(parsePriceCmd)
}

func runParsePrice(cmd *cobra.Command, args []string) error {
	v, ok := price.Parse(strings.Join(args, " "))
	if !ok {
		return fmt.Errorf("no price found in %q", strings.Join(args, " "))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.2f\t%s\n", v, price.FormatBRL(v))
	return nil
}
