package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"qbranch/remote"
)

func (a *app) submitCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Run a circuit on the remote backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCircuit(args[0])
			if err != nil {
				return err
			}
			taskName := name
			if taskName == "" {
				taskName = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			task, err := remote.NewTask(taskName, desc, c)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if a.cfg.Remote.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Remote.Timeout)
				defer cancel()
			}

			opts := []remote.Option{remote.WithLogger(a.logger)}
			if a.cfg.Remote.User != "" {
				opts = append(opts, remote.WithCredentials(a.cfg.Remote.User, a.cfg.Remote.Password))
			}
			if a.cfg.Remote.Timeout > 0 {
				opts = append(opts, remote.WithHandshakeTimeout(a.cfg.Remote.Timeout))
			}
			client, err := remote.Dial(ctx, a.cfg.Remote.URL, opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			a.logger.Info("submitting", "task", taskName, "url", a.cfg.Remote.URL, "operations", len(task.Operations))
			probs, err := client.Run(ctx, task)
			if err != nil {
				return err
			}
			writeProbabilities(cmd.OutOrStdout(), probs, c.QubitNum, a.cfg.Epsilon)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name, defaults to the file name")
	cmd.Flags().StringVar(&desc, "desc", "", "task description")
	cmd.Flags().String("url", "", "backend websocket url")
	a.v.BindPFlag("remote.url", cmd.Flags().Lookup("url"))
	return cmd
}
