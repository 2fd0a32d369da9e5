package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/vaultmail/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaultmaild",
		Short: "Vaultmail daemon",
		Long:  "Vaultmail keeps a vector index in sync with a markdown vault and drafts evidence-grounded replies to incoming mail",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.ResyncCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
