package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"qbranch/manager"
	"qbranch/tui"
)

func (a *app) viewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view [FILE]",
		Short: "Edit a circuit with live simulation results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path, src string
			if len(args) == 1 {
				path = args[0]
				data, err := os.ReadFile(path)
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				src = string(data)
			}
			// the viewer owns the terminal, so managers run without a logger
			return tui.Run(path, src,
				manager.WithEpsilon(a.cfg.Epsilon),
				manager.WithMaxBranches(a.cfg.MaxBranches),
			)
		},
	}
}
