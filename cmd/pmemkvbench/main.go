// Command pmemkvbench sweeps pmemkv and a Pebble baseline across
// workload-scale configs under the OLTP/OLAP/Reporting-shaped workload
// generator this package adapts from the teacher's benchmark harness
// (main.go, main2.go, workload.go, benchmark.go). It is ambient tooling,
// not core: spec.md's core contract is unaffected by its presence.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// scales stand in for the teacher's "degrees"/"lsmThresholds" sweep axes:
// pmemkv's leaf fanout is a build-time constant (kv.LeafKeys), so the axis
// this harness varies instead is the size of the dataset each backend is
// driven against.
var scales = []int{10_000, 100_000, 1_000_000}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pmemkvbench:", err)
		os.Exit(1)
	}
}

func run() error {
	dir, err := os.MkdirTemp("", "pmemkvbench-*")
	if err != nil {
		return errors.Wrap(err, "pmemkvbench: create scratch dir")
	}
	defer os.RemoveAll(dir)

	f, err := os.Create("pmemkvbench_results.csv")
	if err != nil {
		return errors.Wrap(err, "pmemkvbench: create results csv")
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write([]string{"Backend", "Config", "Operation", "LatencyNs", "MemMB", "HeapObjects"})

	series := map[string][]seriesPoint{}

	for _, scale := range scales {
		fmt.Printf("scale=%d\n", scale)

		pmemkvPath := filepath.Join(dir, fmt.Sprintf("pmemkv-%d.pool", scale))
		pmemkvSize := int64(scale)*256 + 1<<20
		pkv, err := openPmemkvTarget(pmemkvPath, pmemkvSize)
		if err != nil {
			return errors.Wrapf(err, "pmemkvbench: open pmemkv at scale %d", scale)
		}
		if err := runSuite(w, series, "pmemkv", pkv, scale); err != nil {
			pkv.Close()
			return err
		}
		pkv.Close()

		pebblePath := filepath.Join(dir, fmt.Sprintf("pebble-%d", scale))
		peb, err := openPebbleTarget(pebblePath)
		if err != nil {
			return errors.Wrapf(err, "pmemkvbench: open pebble at scale %d", scale)
		}
		if err := runSuite(w, series, "pebble", peb, scale); err != nil {
			peb.Close()
			return err
		}
		peb.Close()
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "pmemkvbench: flush results csv")
	}

	return renderLatencyChart(series, "pmemkvbench_latency.png")
}

// runSuite drives one backend through a pure-insert load phase followed by
// OLTP, OLAP, and a full-keyspace Reporting scan, recording each phase's
// per-op latency and memory footprint — the same four-phase shape as the
// teacher's runSuite (main.go), generalized from its fixed struct-of-index
// types to the target interface both backends here satisfy.
func runSuite(w *csv.Writer, series map[string][]seriesPoint, name string, t target, n int) error {
	confStr := fmt.Sprintf("%d", n)

	start := time.Now()
	for k := 0; k < n; k++ {
		if err := t.Put(encodeKey(k), []byte("v")); err != nil {
			return errors.Wrapf(err, "%s: load insert", name)
		}
	}
	insertLatency := time.Since(start).Nanoseconds() / int64(n)

	mem := GetDetailedMem()
	recordPoint(w, series, name, "Load_Insert", confStr, insertLatency, mem, float64(n))

	start = time.Now()
	if err := ExecuteWorkload(t, OLTP, n/2); err != nil {
		return errors.Wrapf(err, "%s: OLTP workload", name)
	}
	recordPoint(w, series, name, "Workload_OLTP", confStr, time.Since(start).Nanoseconds()/int64(n/2), GetDetailedMem(), float64(n))

	start = time.Now()
	if err := ExecuteWorkload(t, OLAP, n/2); err != nil {
		return errors.Wrapf(err, "%s: OLAP workload", name)
	}
	recordPoint(w, series, name, "Workload_OLAP", confStr, time.Since(start).Nanoseconds()/int64(n/2), GetDetailedMem(), float64(n))

	start = time.Now()
	if err := ExecuteWorkload(t, Reporting, 1); err != nil {
		return errors.Wrapf(err, "%s: Reporting scan", name)
	}
	recordPoint(w, series, name, "Workload_Reporting", confStr, time.Since(start).Nanoseconds(), GetDetailedMem(), float64(n))

	return nil
}

func recordPoint(w *csv.Writer, series map[string][]seriesPoint, backend, op, conf string, latencyNs int64, mem MemoryStats, scale float64) {
	Record(w, BenchResult{
		Backend:   backend,
		Config:    conf,
		Operation: op,
		LatencyNs: latencyNs,
		MemMB:     mem.AllocMB,
		Objects:   mem.HeapObjects,
	})
	seriesName := backend + "/" + op
	series[seriesName] = append(series[seriesName], seriesPoint{scale: scale, latencyNs: float64(latencyNs)})
}
