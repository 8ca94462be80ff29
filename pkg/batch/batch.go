package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edp1096/toy-powerflow/pkg/analysis"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

// ErrScenarioSkipped marks scenarios that never ran because the batch was
// cancelled.
var ErrScenarioSkipped = errors.New("scenario skipped")

type Options struct {
	Calculation analysis.Calculation
	Analysis    analysis.Options
	Threads     int  // 0: one per CPU, 1: sequential
	FailFast    bool // stop at the first failed scenario
}

type Scenario struct {
	Index    int
	Name     string
	Result   *analysis.Result
	Err      error
	Duration time.Duration
}

type Report struct {
	RunID     string
	Scenarios []Scenario
	Duration  time.Duration
}

// Failed counts the scenarios that carry an error, skipped ones included.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Scenarios {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Results returns the per-scenario results in input order, nil where the
// scenario failed.
func (r *Report) Results() []*analysis.Result {
	out := make([]*analysis.Result, len(r.Scenarios))
	for i, s := range r.Scenarios {
		out[i] = s.Result
	}
	return out
}

func workers(threads, scenarios int) int {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads > scenarios {
		threads = scenarios
	}
	return max(threads, 1)
}

// Solve runs one calculation per update on its own view of net. The report
// holds an entry for every update in input order. The returned error is
// the first failure with FailFast, the context error if ctx was cancelled,
// and nil otherwise.
func Solve(ctx context.Context, net *network.Network, updates []network.Update, opts Options) (*Report, error) {
	if net == nil {
		return nil, network.ErrNilInput
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Scenarios: make([]Scenario, len(updates)),
	}
	sw := util.StartStopwatch("batch " + report.RunID).Logged()
	defer func() { report.Duration = sw.Stop() }()

	for i := range report.Scenarios {
		report.Scenarios[i] = Scenario{Index: i, Name: scenarioName(i, updates[i]), Err: ErrScenarioSkipped}
	}

	threads := workers(opts.Threads, len(updates))
	log.Printf("batch %s: %d %v scenarios on %d workers", report.RunID, len(updates), opts.Calculation, threads)

	var err error
	if threads == 1 {
		err = solveSequential(ctx, net, updates, opts, report)
	} else {
		err = solveParallel(ctx, net, updates, opts, threads, report)
	}

	if failed := report.Failed(); failed > 0 {
		log.Printf("batch %s: %d of %d scenarios failed", report.RunID, failed, len(updates))
	}
	return report, err
}

func solveSequential(ctx context.Context, net *network.Network, updates []network.Update, opts Options, report *Report) error {
	for i := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}
		slot := &report.Scenarios[i]
		runScenario(net, updates[i], opts, slot)
		if slot.Err != nil && opts.FailFast {
			return fmt.Errorf("scenario %d (%s): %w", i, slot.Name, slot.Err)
		}
	}
	return nil
}

func solveParallel(ctx context.Context, net *network.Network, updates []network.Update, opts Options, threads int, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	for i := range updates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			slot := &report.Scenarios[i]
			runScenario(net, updates[i], opts, slot)
			if slot.Err != nil && opts.FailFast {
				return fmt.Errorf("scenario %d (%s): %w", i, slot.Name, slot.Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runScenario writes only to its own slot.
func runScenario(base *network.Network, u network.Update, opts Options, slot *Scenario) {
	start := time.Now()
	defer func() { slot.Duration = time.Since(start) }()

	view, err := base.WithUpdates(u)
	if err != nil {
		slot.Err = err
		return
	}
	slot.Result, slot.Err = analysis.Run(view, opts.Calculation, opts.Analysis)
}

func scenarioName(i int, u network.Update) string {
	if u.Name != "" {
		return u.Name
	}
	return fmt.Sprintf("scenario %d", i)
}
