package jobs

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/sources"
	"github.com/jvl-group/leadradar/internal/taxonomy"
)

// Scan retry policy. Adapter errors already swallow page-level trouble, so a
// failed task here means the whole source listing was unreachable.
const (
	scanMaxRetries  = 5
	scanBackoffBase = 1.7
)

// ScanRequest configures one scan run. Countries may contain region aliases;
// Sources may contain "ALL".
type ScanRequest struct {
	Countries    []string `json:"countries"`
	Sources      []string `json:"sources"`
	SinceMonths  int      `json:"since_months"`
	MaxPerSource int      `json:"max_per_source"`
}

// Orchestrator fans a scan request out over the source-by-country grid and
// merges every raw candidate into the lead store.
type Orchestrator struct {
	store      *leadstore.Store
	registry   *sources.Registry
	jobs       *Registry
	rules      *taxonomy.Ruleset
	maxWorkers int
}

// NewOrchestrator wires the scan pipeline together. maxWorkers bounds the
// worker pool; the effective pool is never larger than the task grid.
func NewOrchestrator(store *leadstore.Store, reg *sources.Registry, jobs *Registry, rules *taxonomy.Ruleset, maxWorkers int) *Orchestrator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Orchestrator{
		store:      store,
		registry:   reg,
		jobs:       jobs,
		rules:      rules,
		maxWorkers: maxWorkers,
	}
}

// Jobs exposes the job registry.
func (o *Orchestrator) Jobs() *Registry { return o.jobs }

// StartScan runs the full scan synchronously and returns the job id. The job
// is visible as "running" while the grid executes; per-source progress is
// updated as each task completes. Task failures count as errors and never
// abort the run.
func (o *Orchestrator) StartScan(ctx context.Context, req ScanRequest) (string, error) {
	countries := o.rules.ExpandCountries(req.Countries)

	var srcNames []string
	all := false
	for _, s := range req.Sources {
		if s == "ALL" || s == "all" {
			all = true
			break
		}
	}
	if all || len(req.Sources) == 0 {
		srcNames = o.registry.Names()
	} else {
		for _, s := range req.Sources {
			if _, ok := o.registry.Get(s); ok {
				srcNames = append(srcNames, s)
			}
		}
	}

	jobID := o.jobs.Create("scan", StatusRunning, &ScanParams{
		Countries:    countries,
		Sources:      srcNames,
		SinceMonths:  req.SinceMonths,
		MaxPerSource: req.MaxPerSource,
	})
	o.jobs.Update(jobID, func(j *Job) {
		j.Progress = make(map[string]float64, len(srcNames))
		for _, s := range srcNames {
			j.Progress[s] = 0
		}
	})

	grid := len(srcNames) * len(countries)
	if grid == 0 {
		o.jobs.Update(jobID, func(j *Job) { j.Status = StatusScanned })
		return jobID, nil
	}

	workers := o.maxWorkers
	if grid < workers {
		workers = grid
	}

	var mu sync.Mutex
	found, errCount := 0, 0
	donePerSource := make(map[string]int, len(srcNames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, src := range srcNames {
		for _, country := range countries {
			g.Go(func() error {
				rows, err := o.scanTask(gctx, src, country, req.SinceMonths, req.MaxPerSource)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errCount++
					zap.L().Warn("scan task failed",
						zap.String("source", src),
						zap.String("country", country),
						zap.Error(err),
					)
				} else {
					for _, rc := range rows {
						o.store.Upsert(rc)
						found++
					}
				}
				donePerSource[src]++
				frac := float64(donePerSource[src]) / float64(len(countries))
				o.jobs.Update(jobID, func(j *Job) {
					j.Progress[src] = math.Min(1, frac)
					j.Found = found
					j.Errors = errCount
				})
				return nil
			})
		}
	}
	_ = g.Wait()

	o.jobs.Update(jobID, func(j *Job) {
		j.Status = StatusScanned
		j.Found = found
		j.Errors = errCount
	})
	zap.L().Info("scan done",
		zap.String("job_id", jobID),
		zap.Strings("sources", srcNames),
		zap.Int("countries", len(countries)),
		zap.Int("found", found),
		zap.Int("errors", errCount),
	)
	return jobID, nil
}

// scanTask runs one adapter against one country with retries.
func (o *Orchestrator) scanTask(ctx context.Context, src, country string, sinceMonths, maxItems int) ([]leadstore.RawCandidate, error) {
	adapter, ok := o.registry.Get(src)
	if !ok {
		return nil, nil
	}
	var lastErr error
	for attempt := 0; attempt < scanMaxRetries; attempt++ {
		rows, err := adapter.Scan(ctx, country, sinceMonths, maxItems)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		d := time.Duration(math.Pow(scanBackoffBase, float64(attempt)) * float64(time.Second))
		d += time.Duration(rand.Float64() * float64(time.Second))
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, lastErr
}
