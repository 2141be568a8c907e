package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "secaudit",
	Short: "AI security audit for stored content",
	Long: `secaudit scores stored content for security-sensitive disclosures
(PII, credentials, internal information) using an LLM backend, caching
per-vector risk scores keyed by content and configuration fingerprints.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the secaudit version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("secaudit version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	logLevel := new(slog.LevelVar)
	if os.Getenv("SECAUDIT_DEBUG") != "" {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(vectorsCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
