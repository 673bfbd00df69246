// Command importer runs spreadsheet imports from the command line.
//
//	importer run --kind beneficiary --campaign 42 liste.xlsx
//	importer run --kind participant --campaign 42 --apply --policy update s3://imports/liste.csv
//	importer rollback 6f1c2b9e-4d7a-4c55-9e0f-1a2b3c4d5e6f
//	importer kinds
//
// Without --apply, run is a dry-run: rows are validated and checked for
// duplicates but nothing is written. The summary is printed to stdout as
// JSON; logs go to stderr.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/medimport/internal/config"
)

const (
	exitFailure  = 1
	exitUsage    = 2
	exitRejected = 3
)

// codedError carries the process exit code for an error.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

func exitCode(err error) int {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "importer",
		Short:         "Import beneficiary and participant spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return withCode(exitUsage, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")

	root.AddCommand(newRunCmd(), newRollbackCmd(), newKindsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
