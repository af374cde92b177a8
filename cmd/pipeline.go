package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/enrich"
	"github.com/jvl-group/leadradar/internal/export"
	"github.com/jvl-group/leadradar/internal/fetcher"
	"github.com/jvl-group/leadradar/internal/jobs"
	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/scorer"
	"github.com/jvl-group/leadradar/internal/sources"
	"github.com/jvl-group/leadradar/internal/taxonomy"
	"github.com/jvl-group/leadradar/internal/tracker"
	"github.com/jvl-group/leadradar/pkg/anthropic"
)

// pipelineEnv bundles the wired pipeline components for a command.
type pipelineEnv struct {
	Rules    *taxonomy.Ruleset
	Store    *leadstore.Store
	Fetcher  *fetcher.Client
	Orch     *jobs.Orchestrator
	Walker   *enrich.Walker
	Scorer   *scorer.Scorer
	Exporter *export.Exporter
	Tracker  *tracker.Store
}

// initPipeline wires every component from the loaded config. withTracker
// opens the analytics database; commands that never mint or record tracking
// data skip it.
func initPipeline(ctx context.Context, withTracker bool) (*pipelineEnv, error) {
	rules := taxonomy.DefaultRuleset()
	if cfg.Ruleset != "" {
		r, err := taxonomy.LoadRuleset(cfg.Ruleset)
		if err != nil {
			return nil, eris.Wrap(err, "load ruleset")
		}
		rules = r
	}

	fetch := fetcher.New(fetcher.Options{
		PerHostRPS:    cfg.Crawl.PerHostRPS,
		MaxRetries:    cfg.Crawl.MaxRetries,
		BackoffBase:   cfg.Crawl.BackoffBase,
		Timeout:       time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
		RespectRobots: cfg.Crawl.RespectRobots,
	})

	store := leadstore.New(rules)
	registry := sources.NewRegistry(fetch)
	orch := jobs.NewOrchestrator(store, registry, jobs.NewRegistry(), rules, cfg.Crawl.MaxWorkers)
	walker := enrich.New(fetch, store, rules)

	sc := scorer.New(store, rules)
	if cfg.Anthropic.Key != "" {
		sc.WithOracle(scorer.NewAnthropicOracle(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model))
		zap.L().Info("pitch oracle enabled", zap.String("model", cfg.Anthropic.Model))
	}

	exporter := export.New(store, cfg.Export.OutDir)

	env := &pipelineEnv{
		Rules:    rules,
		Store:    store,
		Fetcher:  fetch,
		Orch:     orch,
		Walker:   walker,
		Scorer:   sc,
		Exporter: exporter,
	}

	if withTracker && cfg.Tracker.DBPath != "" {
		trk, err := tracker.NewSQLite(cfg.Tracker.DBPath)
		if err != nil {
			return nil, err
		}
		if err := trk.Migrate(ctx); err != nil {
			trk.Close()
			return nil, err
		}
		env.Tracker = trk
		env.Exporter.WithLinker(tracker.NewLinkMinter(trk, cfg.Tracker.BaseURL))
	}

	return env, nil
}

func (e *pipelineEnv) Close() {
	if e.Tracker != nil {
		_ = e.Tracker.Close()
	}
}

// deepOptions maps the enrichment config onto walker options.
func deepOptions() enrich.DeepOptions {
	opts := enrich.DefaultDeepOptions()
	if cfg.Enrich.MaxLeads > 0 {
		opts.MaxLeads = cfg.Enrich.MaxLeads
	}
	if cfg.Enrich.MaxPagesPerLead > 0 {
		opts.MaxPagesPerLead = cfg.Enrich.MaxPagesPerLead
	}
	opts.SameDomainOnly = cfg.Enrich.SameDomainOnly
	return opts
}
