package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newConsistencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consistency",
		Short: "Audit drift between the system of record and the graph",
	}
	cmd.AddCommand(newConsistencyCheckCmd())
	return cmd
}

func newConsistencyCheckCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a consistency check and report drift",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if a.checker == nil {
				return errGraphDisabled
			}

			report, err := a.checker.Check(ctx)
			if err != nil {
				return err
			}
			if a.emitter != nil {
				_ = a.emitter.ConsistencyChecked(ctx, *report)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				fmt.Println(report.Summary)
			}

			if !report.Consistent {
				return fmt.Errorf("stores have drifted")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}
