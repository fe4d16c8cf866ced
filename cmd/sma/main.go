// Command sma drives a sticky mitten avatar inside a running build. With no
// arguments it opens an interactive REPL; subcommands play scripted scenarios
// and replay recorded runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load env
	_ = godotenv.Load(".env")

	// Context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nsma: shutting down")
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
	cancel()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sma",
		Short: "sticky mitten avatar controller",
		Long: "sma connects to a running build and drives a sticky mitten avatar\n" +
			"one simulation step at a time. Without a subcommand it opens the REPL.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRepl(cmd.Context())
		},
	}
	root.AddCommand(newReplCmd(), newRunCmd(), newReplayCmd())
	return root
}
