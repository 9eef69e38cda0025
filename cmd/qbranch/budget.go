package main

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// bytesPerAmplitude is the size of one complex128.
const bytesPerAmplitude = 16

// branchBudget returns the configured branch limit, or when it is zero the
// number of state vectors of the given width that fit in half of the
// available memory split across share concurrent runs. Zero means unbounded
// and is returned when memory cannot be probed.
func (a *app) branchBudget(qubits, share int) int {
	if a.cfg.MaxBranches > 0 {
		return a.cfg.MaxBranches
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		a.logger.Warn("memory probe failed, branch count unbounded", "err", err)
		return 0
	}
	return budgetFor(vm.Available, qubits, share)
}

func budgetFor(available uint64, qubits, share int) int {
	share = max(share, 1)
	perBranch := uint64(bytesPerAmplitude) << qubits
	n := available / 2 / uint64(share) / perBranch
	return int(max(n, 1))
}

// workerCount is the configured worker count, or one per logical CPU.
func (a *app) workerCount() int {
	if a.cfg.Workers > 0 {
		return a.cfg.Workers
	}
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
