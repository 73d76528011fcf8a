package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fdemon [project-path]",
	Short: "fdemon drives Flutter run sessions from a terminal",
	Long: `fdemon is a thin outer program around the Flutter Demon core: it
resolves the project path, loads .fdemon settings, and hands typed
values to the engine. Terminal rendering, keybinding decoding, and the
headless JSON-event adapter are external collaborators this binary
does not implement; this entrypoint drives the engine loop directly
and prints plain diagnostic lines.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		return runEngine(cmd.Context(), path)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fdemon:", err)
		os.Exit(1)
	}
}
