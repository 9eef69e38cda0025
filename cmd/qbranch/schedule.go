package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qbranch/qasm"
	"qbranch/schedule"
)

func (a *app) scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule FILE",
		Short: "Print the time-slotted operation list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCircuit(args[0])
			if err != nil {
				return err
			}
			dag, err := schedule.Build(c)
			if err != nil {
				return err
			}
			ops := dag.Schedule()
			out := cmd.OutOrStdout()
			for _, op := range ops {
				fmt.Fprintln(out, op)
			}
			fmt.Fprintf(out, "depth %d, %d operations, %d roots\n", schedule.Depth(ops), len(ops), len(dag.Roots()))
			for q := 0; q < dag.NumQubits; q++ {
				fmt.Fprintf(out, "q[%d]: %d nodes\n", q, len(dag.NodesOnQubit(q)))
			}
			return nil
		},
	}
}

func (a *app) fmtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fmt FILE",
		Short: "Print a circuit as normalized OpenQASM 2.0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCircuit(args[0])
			if err != nil {
				return err
			}
			src, err := qasm.Format(c)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), src)
			return nil
		},
	}
}
