package main

import (
	"encoding/csv"
	"runtime"
	"strconv"
)

// BenchResult is one row of the sweep: which backend, at which scale config,
// running which workload shape, with the latency and memory footprint
// observed. Mirrors the teacher's own BenchResult (benchmark.go), with
// Backend/Config/Operation renamed to this domain's axes.
type BenchResult struct {
	Backend   string
	Config    string
	Operation string
	LatencyNs int64
	MemMB     uint64
	Objects   uint64
}

// MemoryStats is a GC-forced snapshot of heap usage, used the same way the
// teacher samples memory footprint immediately after a load phase.
type MemoryStats struct {
	AllocMB     uint64
	HeapObjects uint64
}

// GetDetailedMem forces a GC so the sample reflects live data rather than
// collectable garbage, then reads runtime.MemStats.
func GetDetailedMem() MemoryStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:     m.Alloc / 1024 / 1024,
		HeapObjects: m.HeapObjects,
	}
}

// Record writes one BenchResult row to the sweep's CSV writer.
func Record(w *csv.Writer, res BenchResult) {
	w.Write([]string{
		res.Backend,
		res.Config,
		res.Operation,
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
	})
}
