package estimate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/prior"
)

// PriorSource is the point-lookup capability backing the I/O estimator.
type PriorSource interface {
	// Supported reports whether the backing store carries the priors
	// schema at all, distinct from any per-key miss.
	Supported(ctx context.Context) (bool, error)
	// Get returns the prior stored for an exact group key, or (nil, nil)
	// when no row exists. Absent dimensions match rows explicitly marked
	// absent, not "any".
	Get(ctx context.Context, key prior.GroupKey) (*prior.Prior, error)
}

// Estimator is the I/O-backed orchestrator. Lookups are strictly
// sequential: each rung is fetched only after the previous rung missed,
// so a request issues at most 5 ladder fetches plus 4 ancestor fetches.
type Estimator struct {
	src PriorSource
	log *zap.Logger
}

// New creates an Estimator over a prior source. log may be nil for a
// silent estimator.
func New(src PriorSource, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{src: src, log: log}
}

// Estimate computes a price band via point lookups against the source.
// A nil estimate with nil error means no data; the only error returned is
// the caller's own context cancellation. Per-key lookup failures are
// logged and treated as misses so the ladder walk continues.
func (e *Estimator) Estimate(ctx context.Context, technology, material string, partsCount int) (*Estimate, error) {
	ok, err := e.src.Supported(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("estimate: priors capability check failed", zap.Error(err))
		return nil, nil
	}
	if !ok {
		e.log.Debug("estimate: priors schema unsupported by backing store")
		return nil, nil
	}

	technology = strings.TrimSpace(technology)
	material = strings.TrimSpace(material)
	bucket := prior.BucketFromCount(partsCount)

	var chosen *prior.Prior
	var chosenStep prior.FallbackStep
	for _, step := range prior.BuildPlan(technology, material, bucket) {
		p, err := e.fetch(ctx, step)
		if err != nil {
			return nil, err
		}
		if p != nil {
			chosen = p
			chosenStep = step
			break
		}
	}
	if chosen == nil {
		return nil, nil
	}

	p10, p50, p90 := chosen.P10, chosen.P50, chosen.P90
	for _, anc := range prior.Ancestors(chosenStep.Source, technology, material) {
		parent, err := e.fetch(ctx, anc)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			p10, p50, p90 = shrink(*chosen, *parent)
			break
		}
	}

	return &Estimate{
		P10:        p10,
		P50:        p50,
		P90:        p90,
		Confidence: confidenceForSample(chosen.N),
		Source:     chosenStep.Source,
	}, nil
}

// fetch performs one point lookup. Lookup failures are conflated with
// absence on purpose: the walk stays fail-soft and the wrapped error (with
// its SQLSTATE, when Postgres-backed) lands in the log so a missing table
// reads differently from a transient query failure.
func (e *Estimator) fetch(ctx context.Context, step prior.FallbackStep) (*prior.Prior, error) {
	p, err := e.src.Get(ctx, step.Key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("estimate: prior lookup failed, treating as missing",
			zap.String("source", string(step.Source)),
			zap.String("key", step.Key.String()),
			zap.Error(err))
		return nil, nil
	}
	return p, nil
}
