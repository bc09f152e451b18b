// main.go - Offline harness driver for the NLP Peripheral Model
//
// This is a standalone replay harness, not the S2E plugin itself: it drives
// the model over one or more access-trace files so an NLP file and its
// compliance sequences can be exercised and diagnosed without a real
// symbolic CPU attached (spec.md S6.1's hooks are satisfied here by a
// trace-backed HostHooks implementation instead of the executor).
//
// The model core stays strictly single-threaded (spec.md S5): trace files
// are replayed one after another against successive states, never
// concurrently. The errgroup pairs that single processing goroutine with a
// watchdog goroutine enforcing a wall-clock deadline, the same "thin outer
// loop around a single-threaded core" shape as the teacher's
// coprocessor_manager.go fan-out, scaled down to two goroutines.

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	nlpmodel "github.com/dependable-systems/nlpmodel"
)

// watchdogDeadline bounds one invocation's total replay time; a trace file
// built from a misbehaving NLP rule graph (e.g. a runaway chain fire) should
// not hang the harness forever.
const watchdogDeadline = 2 * time.Minute

func main() {
	fs := flag.NewFlagSet("nlpfuzz", flag.ExitOnError)
	cfg, err := nlpmodel.ParseFlags(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "nlpfuzz:", err)
		unix.Exit(1)
	}

	traceFiles := fs.Args()
	if len(traceFiles) == 0 {
		fmt.Fprintln(os.Stderr, "nlpfuzz: usage: nlpfuzz [flags] trace1.tr [trace2.tr ...]")
		unix.Exit(1)
	}

	rng := rand.New(rand.NewSource(1))
	host := NewTraceHost(cfg.UseFuzzer, rng)
	model, err := nlpmodel.NewModel(cfg, host, rng)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nlpfuzz:", err)
		unix.Exit(1)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(runCtx)
	states := make([]*nlpmodel.PeripheralState, 0, len(traceFiles))

	g.Go(func() error {
		defer cancel()
		var err error
		states, err = replayAll(ctx, model, traceFiles)
		return err
	})
	g.Go(func() error { return watchdog(ctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, "nlpfuzz:", err)
		unix.Exit(1)
	}

	if err := model.OnEngineShutdown(states, statsOutPath(cfg), complianceOutPath(cfg)); err != nil {
		fmt.Fprintln(os.Stderr, "nlpfuzz:", err)
		unix.Exit(1)
	}
}

// replayAll runs every trace file to completion against a fresh state each,
// in order. Its caller's deferred cancel ends ctx once it returns, so the
// watchdog goroutine exits too.
func replayAll(ctx context.Context, model *nlpmodel.Model, traceFiles []string) ([]*nlpmodel.PeripheralState, error) {
	states := make([]*nlpmodel.PeripheralState, 0, len(traceFiles))
	for _, path := range traceFiles {
		events, err := LoadTrace(path)
		if err != nil {
			return states, fmt.Errorf("%s: %w", path, err)
		}

		st := model.NewState()
		if err := runTrace(ctx, model, st, events); err != nil {
			return states, fmt.Errorf("%s: %w", path, err)
		}
		states = append(states, st)
	}
	return states, nil
}

// watchdog cancels the run if replayAll has not finished within
// watchdogDeadline, returning nil once the run finishes on its own.
func watchdog(ctx context.Context) error {
	timer := time.NewTimer(watchdogDeadline)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("replay exceeded %s watchdog deadline", watchdogDeadline)
	}
}

func runTrace(ctx context.Context, model *nlpmodel.Model, st *nlpmodel.PeripheralState, events []TraceEvent) error {
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch ev.Kind {
		case TraceRead:
			model.OnRead(st, ev.Addr, ev.Size, ev.PC)
		case TraceWrite:
			model.OnWrite(st, ev.Addr, ev.Value, ev.Size, ev.PC)
		case TraceCondition:
			model.OnCondition(st, ev.Addr, ev.Value, ev.PC)
		case TraceExceptionExit:
			model.OnExceptionExit(st, int(ev.Value))
		case TraceBlockStart:
			if model.OnTranslateBlockStart(st, ev.PC) {
				return nil
			}
		case TraceBlockEnd:
			model.OnTranslateBlockEnd(st, ev.Value != 0)
		}
	}
	return nil
}

func statsOutPath(cfg *nlpmodel.Config) string {
	return cfg.OutDir + "/NLPStatistics.dat"
}

func complianceOutPath(cfg *nlpmodel.Config) string {
	return cfg.OutDir + "/ComplianceCheck.dat"
}
