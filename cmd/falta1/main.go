package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/logger"
	"github.com/spf13/cobra"
)

var Version = "dev"

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "falta1",
		Short:         "Split event costs over PIX and track who confirmed",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stdout")

	// Add subcommands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(participateCmd())
	rootCmd.AddCommand(participantsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(createEventCmd())
	rootCmd.AddCommand(removeParticipantCmd())
	rootCmd.AddCommand(deleteEventCmd())
	rootCmd.AddCommand(stubPayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger sets up the default logger. Client commands stay quiet unless
// --verbose is given.
func initLogger(alwaysVerbose bool) *logger.Logger {
	return logger.Init("falta1", alwaysVerbose || verbose, false, io.Discard)
}
