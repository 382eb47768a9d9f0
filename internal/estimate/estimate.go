// Package estimate computes price bands for prospective manufacturing jobs
// from pre-aggregated historical priors, using hierarchical fallback across
// cohorts and small-sample shrinkage toward coarser cohorts.
package estimate

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/prior"
)

// Confidence is the coarse reliability band derived from the chosen
// cohort's sample size. Shown instead of raw counts.
type Confidence string

const (
	ConfidenceStrong   Confidence = "strong"
	ConfidenceModerate Confidence = "moderate"
	ConfidenceLimited  Confidence = "limited"
	ConfidenceUnknown  Confidence = "unknown"
)

// Estimate is a price band for one prospective job. Quantiles are raw
// amounts; currency presentation belongs to the caller.
type Estimate struct {
	P10        float64      `json:"p10"`
	P50        float64      `json:"p50"`
	P90        float64      `json:"p90"`
	Confidence Confidence   `json:"confidence"`
	Source     prior.Source `json:"source"`
}

// shrinkageK controls how fast a small-sample cohort earns trust over its
// parent: at n=K the blend is an even split.
const shrinkageK = 50

// shrink blends a child cohort's quantiles toward a single parent cohort,
// weighted by the child's sample size.
func shrink(child, parent prior.Prior) (p10, p50, p90 float64) {
	w := float64(child.N) / float64(child.N+shrinkageK)
	p10 = w*child.P10 + (1-w)*parent.P10
	p50 = w*child.P50 + (1-w)*parent.P50
	p90 = w*child.P90 + (1-w)*parent.P90
	return p10, p50, p90
}

// confidenceForSample bands the chosen (pre-blend) cohort's sample size.
func confidenceForSample(n int) Confidence {
	if n < 0 {
		n = 0
	}
	switch {
	case n >= 200:
		return ConfidenceStrong
	case n >= 50:
		return ConfidenceModerate
	case n >= 10:
		return ConfidenceLimited
	default:
		return ConfidenceUnknown
	}
}

// Index is a snapshot of priors keyed by cohort.
type Index map[prior.GroupKey]prior.Prior

// BuildIndex maps priors by group key. When two rows share a key the later
// one wins; the collision is reported through log (nil for silent) so bad
// upstream data stays visible without changing results.
func BuildIndex(priors []prior.Prior, log *zap.Logger) Index {
	if log == nil {
		log = zap.NewNop()
	}
	idx := make(Index, len(priors))
	for _, p := range priors {
		if _, dup := idx[p.Key]; dup {
			log.Debug("estimate: duplicate prior group key, last row wins",
				zap.String("key", p.Key.String()))
		}
		idx[p.Key] = p
	}
	return idx
}

// FromPriors computes an estimate from a complete snapshot of raw prior
// rows. Malformed rows are dropped during normalization. Returns nil when
// no cohort down to global has data; callers treat nil as "no estimate
// available", never as an error.
func FromPriors(rows []prior.RawPrior, technology, material string, partsCount int) *Estimate {
	priors, _ := prior.NormalizeAll(rows)
	return FromIndex(BuildIndex(priors, nil), technology, material, partsCount)
}

// FromIndex computes an estimate against a prebuilt index. Deterministic
// and side-effect-free: identical inputs produce identical output.
func FromIndex(idx Index, technology, material string, partsCount int) *Estimate {
	technology = strings.TrimSpace(technology)
	material = strings.TrimSpace(material)
	bucket := prior.BucketFromCount(partsCount)

	var chosen *prior.Prior
	var chosenStep prior.FallbackStep
	for _, step := range prior.BuildPlan(technology, material, bucket) {
		if p, ok := idx[step.Key]; ok {
			chosen = &p
			chosenStep = step
			break
		}
	}
	if chosen == nil {
		return nil
	}

	p10, p50, p90 := chosen.P10, chosen.P50, chosen.P90
	for _, anc := range prior.Ancestors(chosenStep.Source, technology, material) {
		if parent, ok := idx[anc.Key]; ok {
			p10, p50, p90 = shrink(*chosen, parent)
			break
		}
	}

	return &Estimate{
		P10:        p10,
		P50:        p50,
		P90:        p90,
		Confidence: confidenceForSample(chosen.N),
		Source:     chosenStep.Source,
	}
}
