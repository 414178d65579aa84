package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/sessionstory/sessionstory-go/internal/application/startup"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := startup.Initialize(); err != nil {
		return err
	}

	log.Println("Application has shut down gracefully.")
	return nil
}
