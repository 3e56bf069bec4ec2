package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

// errMismatch signals a failed verification that has already been reported.
var errMismatch = errors.New("fixture mismatches")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trigger-contract",
		Short:         "Check when a trigger update stream is finished",
		Long:          `Verifies the terminal-update classifier against fixtures and classifies individual updates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	root.AddCommand(newVerifyCmd(), newClassifyCmd())
	return root
}

// Execute runs the CLI and exits non-zero on any failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errMismatch) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// output returns a termenv writer for w that only colors real terminals.
func output(cmd *cobra.Command, w io.Writer) *termenv.Output {
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor {
		return termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
	}
	return termenv.NewOutput(w)
}
