// Package main provides the entry point for the ESI assembly proxy.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "esi-assembler",
	Short: "Edge-side include assembly proxy",
	Long: "esi-assembler resolves <esi:include> directives in HTML documents by " +
		"fetching fragments concurrently, degrading failed fragments to empty " +
		"content, and caching fragments with stale-while-revalidate refresh.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
