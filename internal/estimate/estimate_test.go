package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/prior"
)

// scenarioPriors is the ladder used by the end-to-end tests: data at every
// level from global down to tech+mat+parts for CNC / Aluminum 6061 / "2-3".
func scenarioPriors() []prior.RawPrior {
	return []prior.RawPrior{
		{Technology: "global", N: 1000, P10: 12, P50: 20, P90: 35},
		{Technology: "CNC", N: 500, P10: 14, P50: 22, P90: 36},
		{Technology: "CNC", Material: "Aluminum 6061", N: 80, P10: 16, P50: 24, P90: 38},
		{Technology: "CNC", Material: "Aluminum 6061", PartsBucket: "2-3", N: 60, P10: 18, P50: 26, P90: 40},
	}
}

func TestConfidenceForSample(t *testing.T) {
	tests := []struct {
		n        int
		expected Confidence
	}{
		{200, ConfidenceStrong},
		{199, ConfidenceModerate},
		{50, ConfidenceModerate},
		{49, ConfidenceLimited},
		{10, ConfidenceLimited},
		{9, ConfidenceUnknown},
		{0, ConfidenceUnknown},
		{-5, ConfidenceUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, confidenceForSample(tt.n), "n=%d", tt.n)
	}
}

func TestShrink_Exact(t *testing.T) {
	child := prior.Prior{N: 60, P10: 18, P50: 26, P90: 40}
	parent := prior.Prior{N: 80, P10: 16, P50: 24, P90: 38}

	p10, p50, p90 := shrink(child, parent)

	// w = 60/110; blended p50 = (60*26 + 50*24) / 110
	assert.InDelta(t, 2760.0/110.0, p50, 1e-9)
	assert.InDelta(t, 1880.0/110.0, p10, 1e-9)
	assert.InDelta(t, 4300.0/110.0, p90, 1e-9)
}

func TestFromPriors_EndToEnd(t *testing.T) {
	est := FromPriors(scenarioPriors(), "CNC", "Aluminum 6061", 2)
	require.NotNil(t, est)

	assert.Equal(t, prior.SourceTechMatParts, est.Source)
	assert.Equal(t, ConfidenceModerate, est.Confidence)
	assert.InDelta(t, 25.0909, est.P50, 0.001)
	assert.InDelta(t, 17.0909, est.P10, 0.001)
	assert.InDelta(t, 39.0909, est.P90, 0.001)
}

func TestFromPriors_Deterministic(t *testing.T) {
	rows := scenarioPriors()
	a := FromPriors(rows, "CNC", "Aluminum 6061", 2)
	b := FromPriors(rows, "CNC", "Aluminum 6061", 2)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, *a, *b)
}

func TestFromPriors_LadderPrecedence(t *testing.T) {
	rows := scenarioPriors()

	// Full ladder: most specific wins.
	est := FromPriors(rows, "CNC", "Aluminum 6061", 2)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceTechMatParts, est.Source)

	// No bucketable count: tech+mat leads the plan.
	est = FromPriors(rows, "CNC", "Aluminum 6061", 0)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceTechMat, est.Source)

	// Unknown material: falls to tech.
	est = FromPriors(rows, "CNC", "Titanium", 99)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceTech, est.Source)

	// Unknown technology: global.
	est = FromPriors(rows, "Waterjet", "", 0)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceGlobal, est.Source)
}

func TestFromPriors_SkipAroundLadder(t *testing.T) {
	// tech+mat+parts absent but tech+mat and tech+parts both present:
	// tech+mat must win because it is earlier in the ladder.
	rows := []prior.RawPrior{
		{Technology: "global", N: 1000, P10: 12, P50: 20, P90: 35},
		{Technology: "CNC", N: 500, P10: 14, P50: 22, P90: 36},
		{Technology: "CNC", Material: "Aluminum 6061", N: 80, P10: 16, P50: 24, P90: 38},
		{Technology: "CNC", PartsBucket: "2-3", N: 300, P10: 15, P50: 23, P90: 37},
	}

	est := FromPriors(rows, "CNC", "Aluminum 6061", 2)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceTechMat, est.Source)
}

func TestFromPriors_NoParentPassThrough(t *testing.T) {
	// Only a tech+mat+parts row: no ancestor anywhere, quantiles unchanged.
	rows := []prior.RawPrior{
		{Technology: "CNC", Material: "Aluminum 6061", PartsBucket: "2-3", N: 60, P10: 18, P50: 26, P90: 40},
	}

	est := FromPriors(rows, "CNC", "Aluminum 6061", 2)
	require.NotNil(t, est)
	assert.Equal(t, 18.0, est.P10)
	assert.Equal(t, 26.0, est.P50)
	assert.Equal(t, 40.0, est.P90)
}

func TestFromPriors_AncestorSkipsMissingLevels(t *testing.T) {
	// tech+mat missing: the blending parent is tech, not tech+mat.
	rows := []prior.RawPrior{
		{Technology: "CNC", N: 80, P10: 16, P50: 24, P90: 38},
		{Technology: "CNC", Material: "Aluminum 6061", PartsBucket: "2-3", N: 60, P10: 18, P50: 26, P90: 40},
	}

	est := FromPriors(rows, "CNC", "Aluminum 6061", 2)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceTechMatParts, est.Source)
	assert.InDelta(t, 2760.0/110.0, est.P50, 1e-9)
}

func TestFromPriors_GlobalHasNoParent(t *testing.T) {
	rows := []prior.RawPrior{
		{Technology: "global", N: 1000, P10: 12, P50: 20, P90: 35},
	}

	est := FromPriors(rows, "", "", 0)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceGlobal, est.Source)
	assert.Equal(t, 20.0, est.P50)
	assert.Equal(t, ConfidenceStrong, est.Confidence)
}

func TestFromPriors_ConfidenceUsesChosenSample(t *testing.T) {
	// Chosen cohort n=9 even though the parent is huge: confidence comes
	// from the pre-blend chosen sample.
	rows := []prior.RawPrior{
		{Technology: "global", N: 100000, P10: 12, P50: 20, P90: 35},
		{Technology: "CNC", N: 9, P10: 14, P50: 22, P90: 36},
	}

	est := FromPriors(rows, "CNC", "", 0)
	require.NotNil(t, est)
	assert.Equal(t, ConfidenceUnknown, est.Confidence)
}

func TestFromPriors_NoData(t *testing.T) {
	assert.Nil(t, FromPriors(nil, "CNC", "Aluminum 6061", 2))
	assert.Nil(t, FromPriors([]prior.RawPrior{}, "CNC", "", 0))

	// All rows malformed: same as empty.
	rows := []prior.RawPrior{
		{Technology: "", N: 10, P10: 1, P50: 2, P90: 3},
		{Technology: "CNC", N: "bad", P10: 1, P50: 2, P90: 3},
	}
	assert.Nil(t, FromPriors(rows, "CNC", "", 0))
}

func TestFromPriors_TrimsInputs(t *testing.T) {
	est := FromPriors(scenarioPriors(), "  CNC ", " Aluminum 6061 ", 2)
	require.NotNil(t, est)
	assert.Equal(t, prior.SourceTechMatParts, est.Source)
}

func TestBuildIndex_LastRowWins(t *testing.T) {
	priors, dropped := prior.NormalizeAll([]prior.RawPrior{
		{Technology: "CNC", N: 10, P10: 1, P50: 2, P90: 3},
		{Technology: "CNC", N: 20, P10: 4, P50: 5, P90: 6},
	})
	require.Zero(t, dropped)

	idx := BuildIndex(priors, nil)
	require.Len(t, idx, 1)
	p := idx[prior.GroupKey{Technology: prior.Tech("CNC")}]
	assert.Equal(t, 20, p.N)
	assert.Equal(t, 5.0, p.P50)
}
