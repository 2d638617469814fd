package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("ragline %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		// Version output should not require a valid environment.
		fmt.Printf("\nConfiguration: unavailable (%v)\n", err)
		return nil
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Embedder: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Listen address: %s\n", cfg.ListenAddr)
	fmt.Printf("  Sessions: %v\n", cfg.SessionsEnabled())
	fmt.Printf("  Document bucket: %s\n", orUnset(cfg.DocumentBucket))

	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
