package cmd

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/ftl/hamshack/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration as YAML",
	Run:   runWithCtx(runConfig),
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ context.Context, cfg *config.Config, _ *cobra.Command, _ []string) {
	if err := cfg.WriteYAML(os.Stdout); err != nil {
		log.Fatal(err)
	}
}
