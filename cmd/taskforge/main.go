package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "taskforge",
		Short: "Taskforge - natural language task execution agent",
		Long: `Taskforge turns natural language requests into validated action
plans and executes them inside a sandboxed workspace. Plans come from
an LLM provider, pass a safety validator, and every run produces a
structured report.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
