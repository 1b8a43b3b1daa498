// Package aggregator fans out to every registered scanner and merges the results.
package aggregator

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-yield-agent/internal/audit"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/observability"
	"solana-yield-agent/internal/scanner"
)

// DefaultScanTimeout bounds each scanner call.
const DefaultScanTimeout = 20 * time.Second

// Options configures an Aggregator.
type Options struct {
	Scanners    []scanner.Scanner
	Audit       audit.Logger
	Logger      *log.Logger
	ScanTimeout time.Duration
}

// Aggregator merges scanner output into one ranked list.
type Aggregator struct {
	scanners    []scanner.Scanner
	audit       audit.Logger
	logger      *log.Logger
	scanTimeout time.Duration
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	a := &Aggregator{
		scanners:    opts.Scanners,
		audit:       opts.Audit,
		logger:      opts.Logger,
		scanTimeout: opts.ScanTimeout,
	}
	if a.audit == nil {
		a.audit = audit.Noop{}
	}
	if a.logger == nil {
		a.logger = log.New(log.Writer(), "[aggregator] ", log.LstdFlags)
	}
	if a.scanTimeout <= 0 {
		a.scanTimeout = DefaultScanTimeout
	}
	return a
}

// scanOutcome is the settled result of one scanner.
type scanOutcome struct {
	opps    []domain.YieldOpportunity
	err     error
	settled bool
}

// ScanAll invokes every scanner concurrently, each under its own timeout.
// A failing scanner never cancels the others. When ctx expires before all
// scanners settle, ScanAll returns what has settled so far and discards the
// rest. The result is sorted by SortByAPYDesc.
func (a *Aggregator) ScanAll(ctx context.Context) []domain.YieldOpportunity {
	outcomes := make([]scanOutcome, len(a.scanners))
	var mu sync.Mutex
	abandoned := false

	// Plain group: scanner errors are recorded, never returned, so nothing is cancelled.
	var g errgroup.Group
	for i, s := range a.scanners {
		g.Go(func() error {
			opps, err := a.scanOne(ctx, s)
			mu.Lock()
			defer mu.Unlock()
			if !abandoned {
				outcomes[i] = scanOutcome{opps: opps, err: err, settled: true}
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Printf("WARN: tick deadline reached, proceeding with settled scanners")
	}

	mu.Lock()
	abandoned = true
	settled := slices.Clone(outcomes)
	mu.Unlock()

	var all []domain.YieldOpportunity
	succeeded, failed, pending := 0, 0, 0
	for i, o := range settled {
		name := a.scanners[i].Name()
		switch {
		case !o.settled:
			pending++
			a.audit.Log(domain.AgentAggregator, domain.ActionTypeScanFailed, map[string]any{
				"scanner": name,
				"error":   "abandoned at tick deadline",
			})
		case o.err != nil:
			failed++
			a.audit.Log(domain.AgentAggregator, domain.ActionTypeScanFailed, map[string]any{
				"scanner": name,
				"error":   o.err.Error(),
			})
		default:
			succeeded++
			all = append(all, o.opps...)
		}
	}

	sorted := SortByAPYDesc(all)
	a.logger.Printf("scan complete: %d opportunities from %d/%d scanners", len(sorted), succeeded, len(a.scanners))
	a.audit.Log(domain.AgentAggregator, domain.ActionTypeScanComplete, map[string]any{
		"opportunities": len(sorted),
		"succeeded":     succeeded,
		"failed":        failed,
		"abandoned":     pending,
		"top":           summarize(sorted, 5),
	})
	return sorted
}

// scanOne runs a single scanner under the per-scanner timeout. A panicking
// scanner is reported as a failure.
func (a *Aggregator) scanOne(ctx context.Context, s scanner.Scanner) (opps []domain.YieldOpportunity, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			opps, err = nil, fmt.Errorf("scanner panic: %v", r)
		}
		observability.RecordScan(s.Name(), len(opps), time.Since(start).Seconds(), err)
	}()

	sctx, cancel := context.WithTimeout(ctx, a.scanTimeout)
	defer cancel()
	opps, err = s.Scan(sctx)
	if err != nil {
		a.logger.Printf("WARN: scanner %s failed: %v", s.Name(), err)
		return nil, err
	}
	return opps, nil
}

// SortByAPYDesc returns a copy sorted by APY descending, ties broken by
// protocol name ascending. The sort is stable.
func SortByAPYDesc(opps []domain.YieldOpportunity) []domain.YieldOpportunity {
	out := slices.Clone(opps)
	slices.SortStableFunc(out, func(x, y domain.YieldOpportunity) int {
		if c := cmp.Compare(y.APY, x.APY); c != 0 {
			return c
		}
		return cmp.Compare(x.Protocol, y.Protocol)
	})
	return out
}

func summarize(opps []domain.YieldOpportunity, n int) []map[string]any {
	n = min(n, len(opps))
	out := make([]map[string]any, 0, n)
	for _, o := range opps[:n] {
		out = append(out, map[string]any{
			"protocol": o.Protocol,
			"name":     o.Name,
			"apy":      o.APY,
			"risk":     string(o.Risk),
		})
	}
	return out
}
