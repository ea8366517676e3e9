package main

import (
	"os"

	"github.com/spf13/cobra"

	"meridian-network/cmd/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meridian",
		Short: "Meridian engine command line",
	}
	cli.RegisterRoutes(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
