package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/trigger-contract-service/internal/contract"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [fixture]",
		Short: "Run the conformance fixture against the classifier",
		Long: `Classifies every case in a JSON or YAML fixture and prints one [FAIL] line per
case whose result differs from its expectation. Exits 1 when any case fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := contract.DefaultFixture
			if len(args) > 0 {
				path = args[0]
			}
			return runVerify(cmd, path)
		},
	}
}

func runVerify(cmd *cobra.Command, path string) error {
	cases, err := contract.LoadCases(path)
	if err != nil {
		return err
	}
	report := contract.Verify(cases)

	out := output(cmd, cmd.OutOrStdout())
	if report.Passed() {
		fmt.Fprintln(out, out.String(report.Summary()).Foreground(out.Color("2")))
		return nil
	}

	errOut := output(cmd, cmd.ErrOrStderr())
	for _, m := range report.Mismatches {
		fmt.Fprintln(errOut, errOut.String(m.String()).Foreground(errOut.Color("1")))
	}
	fmt.Fprintf(errOut, "%d of %d cases failed\n", len(report.Mismatches), report.Total)
	return errMismatch
}
