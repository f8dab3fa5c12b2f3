// Package main provides the CLI entry point for the atelier collaborative
// canvas server.
//
// Atelier hosts shared image canvases: connected clients move and group
// images, chat, and trigger AI image generation, with every change fanned out
// in real time to the other participants of the same canvas.
//
// # Basic Usage
//
// Start the server:
//
//	atelier serve --config atelier.yaml
//
// # Environment Variables
//
//   - ATELIER_CONFIG: Path to configuration file
//   - OPENAI_API_KEY: OpenAI API key for image generation and style analysis
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "atelier",
		Short:         "Realtime collaborative image canvas server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(), buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the atelier version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
