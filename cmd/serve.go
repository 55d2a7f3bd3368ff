package cmd

import (
	"fmt"
	"log"

	mcpserver "github.com/lukman83/pricealert/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP stdio server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, err := buildServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting pricealert MCP server on stdio...")

	if err := mcpserver.Serve(svc.mcp()); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
	return nil
}
