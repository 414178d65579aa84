package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sessionstory/sessionstory-go/internal/infrastructure/codec"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
)

func init() {
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <blob-file>",
	Short: "Decode a stored batch blob to JSON",
	Long:  "Reads one batch blob from disk, decodes it through the same format detection the server uses, and prints the events as JSON. Useful for inspecting rows pulled straight out of the datastore.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	blob, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}

	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToConsole: true,
		JSONFormat:      false,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	events, err := codec.New(logger).Decode(blob)
	if err != nil {
		return fmt.Errorf("decode blob: %w", err)
	}
	if events == nil {
		return fmt.Errorf("unrecognized blob format")
	}

	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}
