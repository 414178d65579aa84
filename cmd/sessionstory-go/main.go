package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sessionstory-go",
	Short: "Session recording and replay backend",
	Long:  "Records browser sessions uploaded by the page snippet, stores them as compressed event batches, and serves replays, listings, live feeds, and AI summaries.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
