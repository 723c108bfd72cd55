package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title BP Reports API
// @version 1.0.0
// @description Batch program enrollment report generation
// @BasePath /bp/v1
// @schemes http https

func main() {
	rootCmd := &cobra.Command{
		Use:           "bpreports",
		Short:         "Batch program enrollment reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd(), newWorkerCmd(), newGenerateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
