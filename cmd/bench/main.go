// Command bench runs one of the scheduler's protocol engines against a
// synthetic YCSB-style workload for a fixed duration and reports
// throughput statistics.
//
// Usage:
//
//	bench [flags]
//
// Flags:
//
//	-protocol   serial, dummy, sparkle, spectrum, ariafb, calvin (default: serial)
//	-workers    worker/executor pool size (default: 4)
//	-duration   how long to run before stopping (default: 5s)
//	-zipf       Zipfian skew exponent over the record keyspace (default: 0.99)
//	-records    number of distinct records in the keyspace (default: 100000)
//	-ops        operations (distinct records) per transaction (default: 10)
//	-batch      Aria-FB batch size and Calvin dispatch batch size (default: 4*workers)
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacklightChen/spectrum-sub001/internal/randsrc"
	"github.com/jacklightChen/spectrum-sub001/internal/xlog"
	"github.com/jacklightChen/spectrum-sub001/kv"
	"github.com/jacklightChen/spectrum-sub001/protocol"
	"github.com/jacklightChen/spectrum-sub001/stats"
	"github.com/jacklightChen/spectrum-sub001/workload"
)

type config struct {
	Protocol string
	Workers  int
	Duration time.Duration
	Zipf     float64
	Records  int64
	OpsPerTx int
	Batch    int
}

func defaultConfig() config {
	return config{
		Protocol: "serial",
		Workers:  4,
		Duration: 5 * time.Second,
		Zipf:     0.99,
		Records:  100000,
		OpsPerTx: 10,
		Batch:    0,
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 4 * cfg.Workers
	}

	log.Printf("bench starting: protocol=%s workers=%d duration=%s zipf=%.2f records=%d ops=%d batch=%d",
		cfg.Protocol, cfg.Workers, cfg.Duration, cfg.Zipf, cfg.Records, cfg.OpsPerTx, cfg.Batch)

	sample, err := newSampler(cfg.Records, cfg.Zipf)
	if err != nil {
		log.Printf("invalid distribution parameters: %v", err)
		return 1
	}

	var contract kv.Address
	contract[19] = 1
	w := workload.NewYCSB(sample, cfg.OpsPerTx, contract)

	st := stats.New(kv.DefaultShardCount)
	eng, err := buildProtocol(cfg, w, st)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	eng.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, stopping early", sig)
	case <-time.After(cfg.Duration):
	}

	start := time.Now()
	eng.Stop()
	report := st.PrintWithDuration(cfg.Duration)

	log.Printf("stopped after %s: executes=%d commits=%d operations=%d executes_per_commit=%.3f commits_per_sec=%.1f executes_per_sec=%.1f",
		time.Since(start)+cfg.Duration, report.Executes, report.Commits, report.Operations,
		report.ExecutesPerCommit, report.CommitsPerSecond, report.ExecutesPerSecond)
	return 0
}

// newSampler builds a thread-local Zipfian sampler over [1, records],
// seeded deterministically so repeated runs are comparable.
func newSampler(records int64, exponent float64) (func() int64, error) {
	tl, err := randsrc.NewThreadLocal(func(i int) (randsrc.Sampler, error) {
		return randsrc.NewZipf(rand.New(rand.NewSource(int64(i)+1)), records, exponent)
	})
	if err != nil {
		return nil, err
	}
	return tl.Sample, nil
}

// buildProtocol constructs the named engine, logging one "constructed"
// line through a logger tagged with the engine's name. The engines
// themselves are not given a logger.
func buildProtocol(cfg config, w workload.Workload, st *stats.Stats) (protocol.Protocol, error) {
	switch cfg.Protocol {
	case "serial":
		xlog.Default().Module("serial").Info("constructed")
		return protocol.NewSerial(w, st), nil
	case "dummy":
		xlog.Default().Module("dummy").Info("constructed", "workers", cfg.Workers)
		return protocol.NewDummy(w, st, cfg.Workers), nil
	case "sparkle":
		xlog.Default().Module("sparkle").Info("constructed", "workers", cfg.Workers)
		return protocol.NewSparkleFullRestart(w, st, cfg.Workers), nil
	case "spectrum":
		xlog.Default().Module("spectrum").Info("constructed", "workers", cfg.Workers)
		return protocol.NewSparkle(w, st, cfg.Workers), nil
	case "ariafb":
		xlog.Default().Module("ariafb").Info("constructed", "workers", cfg.Workers, "batch", cfg.Batch)
		return protocol.NewAriaFB(w, st, cfg.Batch, cfg.Workers, true), nil
	case "calvin":
		xlog.Default().Module("calvin").Info("constructed", "executors", cfg.Workers)
		return protocol.NewCalvin(w, st, cfg.Workers, cfg.Batch), nil
	default:
		return nil, fmt.Errorf("unknown protocol %q (want serial, dummy, sparkle, spectrum, ariafb, calvin)", cfg.Protocol)
	}
}

// parseFlags parses CLI arguments into a config. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (config, bool, int) {
	cfg := defaultConfig()
	fs := newCustomFlagSet("bench")
	fs.StringVar(&cfg.Protocol, "protocol", cfg.Protocol, "protocol engine (serial, dummy, sparkle, spectrum, ariafb, calvin)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker/executor pool size")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "how long to run before stopping")
	fs.Float64Var(&cfg.Zipf, "zipf", cfg.Zipf, "Zipfian skew exponent over the record keyspace")
	fs.Int64Var(&cfg.Records, "records", cfg.Records, "number of distinct records in the keyspace")
	fs.IntVar(&cfg.OpsPerTx, "ops", cfg.OpsPerTx, "operations (distinct records) per transaction")
	fs.IntVar(&cfg.Batch, "batch", cfg.Batch, "Aria-FB batch size and Calvin dispatch batch size (default: 4*workers)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}
	return cfg, false, 0
}
