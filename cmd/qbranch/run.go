package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"qbranch/config"
	"qbranch/manager"
	"qbranch/state"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	return table
}

// writeProbabilities prints every basis state above eps, qubit n-1 first.
func writeProbabilities(w io.Writer, probs []float64, n int, eps float64) {
	table := newTable(w, "basis", "probability")
	for i, p := range probs {
		if p <= eps {
			continue
		}
		table.Append([]string{manager.Bitstring(i, n), strconv.FormatFloat(p, 'f', 6, 64)})
	}
	table.Render()
}

func writeCounts(w io.Writer, counts map[string]int, shots int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := newTable(w, "basis", "count", "frequency")
	for _, k := range keys {
		table.Append([]string{k, strconv.Itoa(counts[k]), strconv.FormatFloat(float64(counts[k])/float64(shots), 'f', 4, 64)})
	}
	table.SetFooter([]string{"", strconv.Itoa(shots), ""})
	table.Render()
}

func writeVector(w io.Writer, amps []complex128, n int, eps float64) {
	table := newTable(w, "basis", "real", "imag")
	for i, a := range amps {
		if real(a)*real(a)+imag(a)*imag(a) <= eps {
			continue
		}
		table.Append([]string{
			manager.Bitstring(i, n),
			strconv.FormatFloat(real(a), 'f', 6, 64),
			strconv.FormatFloat(imag(a), 'f', 6, 64),
		})
	}
	table.Render()
}

func writeMarginals(w io.Writer, marg []state.QubitProbability) {
	table := newTable(w, "qubit", "p(0)", "p(1)")
	for q, p := range marg {
		table.Append([]string{
			strconv.Itoa(q),
			strconv.FormatFloat(p.Prob0, 'f', 6, 64),
			strconv.FormatFloat(p.Prob1, 'f', 6, 64),
		})
	}
	table.Render()
}

// writeBranches prints the support of every branch, one row per basis state.
func writeBranches(w io.Writer, branches []manager.Branch, support [][]state.BasisAmplitude, n int) {
	table := newTable(w, "branch", "weight", "clbits", "basis", "probability", "phase", "ones")
	for i, b := range branches {
		clbits := make([]byte, len(b.Clbits))
		for j, v := range b.Clbits {
			clbits[len(clbits)-1-j] = '0' + v
		}
		for _, e := range support[i] {
			table.Append([]string{
				strconv.Itoa(i),
				strconv.FormatFloat(b.Weight, 'f', 6, 64),
				string(clbits),
				manager.Bitstring(e.Index, n),
				strconv.FormatFloat(e.Prob, 'f', 6, 64),
				strconv.FormatFloat(e.Phase, 'f', 4, 64),
				strconv.Itoa(e.Hamming),
			})
		}
	}
	table.Render()
}

func (a *app) runCmd() *cobra.Command {
	var (
		counts    bool
		vector    bool
		marginals bool
		branches  bool
		seed      uint64
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Simulate a circuit and print its probabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCircuit(args[0])
			if err != nil {
				return err
			}
			mgr := manager.New(a.managerOptions(c.QubitNum, 1)...)
			if err := mgr.Execute(c); err != nil {
				return err
			}
			s := mgr.Stats()
			a.logger.Info("simulated", "file", args[0], "qubits", c.QubitNum, "gates", c.GateCount(),
				"peak_branches", s.PeakBranches, "cache_hits", s.Hits, "cache_misses", s.Misses)

			out := cmd.OutOrStdout()
			probs, err := mgr.Probabilities()
			if err != nil {
				return err
			}
			writeProbabilities(out, probs, c.QubitNum, a.cfg.Epsilon)

			if vector {
				amps, err := mgr.StateVector()
				if err != nil {
					return err
				}
				writeVector(out, amps, c.QubitNum, a.cfg.Epsilon)
			}
			if marginals {
				marg, err := mgr.Marginals()
				if err != nil {
					return err
				}
				writeMarginals(out, marg)
			}
			if branches {
				bs, err := mgr.Branches()
				if err != nil {
					return err
				}
				support, err := mgr.Support(a.cfg.Epsilon)
				if err != nil {
					return err
				}
				writeBranches(out, bs, support, c.QubitNum)
			}
			if counts || cmd.Flags().Changed("shots") {
				var rng manager.Float64Source
				if seed != 0 {
					rng = rand.New(rand.NewPCG(seed, seed))
				}
				res, err := mgr.Counts(a.cfg.Shots, rng)
				if err != nil {
					return err
				}
				writeCounts(out, res, a.cfg.Shots)
			}
			return nil
		},
	}
	d := config.Default().Shots
	cmd.Flags().BoolVar(&counts, "counts", false, "sample measurement counts")
	cmd.Flags().Int("shots", d, "number of samples for --counts")
	cmd.Flags().BoolVar(&vector, "vector", false, "print the state vector")
	cmd.Flags().BoolVar(&marginals, "marginals", false, "print per-qubit probabilities")
	cmd.Flags().BoolVar(&branches, "branches", false, "print the support of every branch")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "sampling seed, 0 for a random one")
	a.v.BindPFlag("shots", cmd.Flags().Lookup("shots"))
	return cmd
}

type batchResult struct {
	file     string
	qubits   int
	gates    int
	branches int
	top      int
	topProb  float64
}

func (a *app) batchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch FILE...",
		Short: "Simulate independent circuits concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workers := a.workerCount()
			results := make([]batchResult, len(args))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)
			for i, path := range args {
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					c, err := loadCircuit(path)
					if err != nil {
						return err
					}
					mgr := manager.New(a.managerOptions(c.QubitNum, workers)...)
					if err := mgr.Execute(c); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					probs, err := mgr.Probabilities()
					if err != nil {
						return err
					}
					r := batchResult{
						file:     filepath.Base(path),
						qubits:   c.QubitNum,
						gates:    c.GateCount(),
						branches: mgr.Stats().PeakBranches,
					}
					for j, p := range probs {
						if p > r.topProb {
							r.top, r.topProb = j, p
						}
					}
					results[i] = r
					a.logger.Debug("batch item done", "file", path)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), "file", "qubits", "gates", "peak branches", "top basis", "probability")
			for _, r := range results {
				table.Append([]string{
					r.file,
					strconv.Itoa(r.qubits),
					strconv.Itoa(r.gates),
					strconv.Itoa(r.branches),
					manager.Bitstring(r.top, r.qubits),
					strconv.FormatFloat(r.topProb, 'f', 6, 64),
				})
			}
			table.Render()
			return nil
		},
	}
}
