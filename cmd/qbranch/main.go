// Command qbranch simulates OpenQASM circuits with mid-circuit measurement
// and classically conditioned gates.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qbranch/circuit"
	"qbranch/config"
	"qbranch/manager"
	"qbranch/qasm"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	var cfgPath string

	root := &cobra.Command{
		Use:           "qbranch",
		Short:         "Branching state-vector quantum simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
				Level:  cfg.Level(),
				Prefix: "qbranch",
			})
			if cfgPath != "" {
				a.logger.Debug("config loaded", "path", cfgPath)
			}
			return nil
		},
	}

	d := config.Default()
	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "config file (yaml, toml or json)")
	pf.String("log-level", d.LogLevel, "debug, info, warn or error")
	pf.Float64("epsilon", d.Epsilon, "drop measurement outcomes below this probability")
	pf.Int("max-branches", d.MaxBranches, "branch budget, 0 derives one from free memory")
	a.v.BindPFlag("log_level", pf.Lookup("log-level"))
	a.v.BindPFlag("epsilon", pf.Lookup("epsilon"))
	a.v.BindPFlag("max_branches", pf.Lookup("max-branches"))

	root.AddCommand(
		a.runCmd(),
		a.batchCmd(),
		a.scheduleCmd(),
		a.fmtCmd(),
		a.submitCmd(),
		a.viewCmd(),
	)
	return root
}

// loadCircuit reads and parses one OpenQASM file.
func loadCircuit(path string) (*circuit.Circuit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := qasm.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// managerOptions builds the options for simulating a circuit of the given
// width. share divides the memory-derived budget between concurrent runs.
func (a *app) managerOptions(qubits, share int) []manager.Option {
	return []manager.Option{
		manager.WithLogger(a.logger),
		manager.WithEpsilon(a.cfg.Epsilon),
		manager.WithMaxBranches(a.branchBudget(qubits, share)),
	}
}

func execute(ctx context.Context, root *cobra.Command, args []string, stdout, stderr io.Writer) error {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := execute(ctx, newRootCmd(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "qbranch:", err)
		stop()
		os.Exit(1)
	}
}
