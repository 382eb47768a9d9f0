// Package prior defines the historical price-prior domain: group keys,
// parts buckets, and the validation boundary that turns untrusted
// pre-aggregated rows into typed priors.
package prior

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// PartsBucket is the ordinal part-count cohort dimension. The zero value
// means the dimension is absent.
type PartsBucket string

const (
	BucketOne        PartsBucket = "1"
	BucketTwoToThree PartsBucket = "2-3"
	BucketFourToTen  PartsBucket = "4-10"
	BucketElevenPlus PartsBucket = "11+"
	BucketNone       PartsBucket = ""
)

// BucketFromCount maps a part count to its bucket. Counts that are zero or
// negative are unbucketed and return BucketNone.
func BucketFromCount(count int) PartsBucket {
	switch {
	case count == 1:
		return BucketOne
	case count >= 2 && count <= 3:
		return BucketTwoToThree
	case count >= 4 && count <= 10:
		return BucketFourToTen
	case count >= 11:
		return BucketElevenPlus
	default:
		return BucketNone
	}
}

// ParseBucket validates a raw bucket literal. Anything other than an exact
// match of the four valid literals returns (BucketNone, false).
func ParseBucket(s string) (PartsBucket, bool) {
	switch PartsBucket(s) {
	case BucketOne, BucketTwoToThree, BucketFourToTen, BucketElevenPlus:
		return PartsBucket(s), true
	default:
		return BucketNone, false
	}
}

// GlobalLiteral is the reserved technology value upstream aggregation jobs
// use to mark the dimension-free cohort. It is translated into the tagged
// Technology form at the parse boundary and never compared downstream.
const GlobalLiteral = "global"

// Technology is either a named manufacturing technology or the global
// (dimension-free) cohort. The tagged form keeps a real technology named
// "global" from colliding with the top-level cohort.
type Technology struct {
	name   string
	global bool
}

// Tech returns the technology variant for a named technology.
func Tech(name string) Technology { return Technology{name: name} }

// Global returns the top-level, dimension-free technology variant.
func Global() Technology { return Technology{global: true} }

// IsGlobal reports whether t is the dimension-free cohort.
func (t Technology) IsGlobal() bool { return t.global }

// Name returns the technology name, or "" for the global variant.
func (t Technology) Name() string { return t.name }

func (t Technology) String() string {
	if t.global {
		return "(global)"
	}
	return t.name
}

// GroupKey identifies one aggregation cohort. Material and Bucket use their
// zero values to mean the dimension is absent; the normalizer guarantees a
// present material is never the empty string.
type GroupKey struct {
	Technology Technology
	Material   string
	Bucket     PartsBucket
}

func (k GroupKey) String() string {
	parts := []string{k.Technology.String()}
	if k.Material != "" {
		parts = append(parts, k.Material)
	}
	if k.Bucket != BucketNone {
		parts = append(parts, string(k.Bucket))
	}
	return strings.Join(parts, "/")
}

// RawPrior is one untrusted pre-aggregated row as delivered by the upstream
// aggregation job. Numeric fields may arrive as strings or numbers, which is
// why they are typed any and only cross into Prior through Normalize.
type RawPrior struct {
	Technology  string `yaml:"technology" json:"technology"`
	Material    string `yaml:"material" json:"material"`
	PartsBucket string `yaml:"parts_bucket" json:"parts_bucket"`
	N           any    `yaml:"n" json:"n"`
	P10         any    `yaml:"p10" json:"p10"`
	P50         any    `yaml:"p50" json:"p50"`
	P90         any    `yaml:"p90" json:"p90"`
}

// Prior is a validated pre-aggregated price statistic for one cohort.
// Quantiles are assumed ordered (p10 <= p50 <= p90) by the upstream job;
// that invariant is not re-checked here.
type Prior struct {
	Key GroupKey
	N   int
	P10 float64
	P50 float64
	P90 float64
}

// Normalize validates a raw row. Rejection is all-or-nothing: a row with a
// blank technology or any non-finite numeric field is dropped whole.
// An invalid bucket literal only clears the bucket dimension.
func Normalize(row RawPrior) (Prior, bool) {
	tech := strings.TrimSpace(row.Technology)
	if tech == "" {
		return Prior{}, false
	}

	technology := Tech(tech)
	if tech == GlobalLiteral {
		technology = Global()
	}

	bucket, _ := ParseBucket(row.PartsBucket)

	n, ok := toFloat(row.N)
	if !ok {
		return Prior{}, false
	}
	p10, ok := toFloat(row.P10)
	if !ok {
		return Prior{}, false
	}
	p50, ok := toFloat(row.P50)
	if !ok {
		return Prior{}, false
	}
	p90, ok := toFloat(row.P90)
	if !ok {
		return Prior{}, false
	}

	samples := int(math.Floor(n))
	if samples < 0 {
		samples = 0
	}

	return Prior{
		Key: GroupKey{
			Technology: technology,
			Material:   strings.TrimSpace(row.Material),
			Bucket:     bucket,
		},
		N:   samples,
		P10: p10,
		P50: p50,
		P90: p90,
	}, true
}

// NormalizeAll validates a batch of raw rows, returning the accepted priors
// and the number of rows dropped. Malformed rows are noise in the historical
// data, never an error.
func NormalizeAll(rows []RawPrior) ([]Prior, int) {
	priors := make([]Prior, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		p, ok := Normalize(row)
		if !ok {
			dropped++
			continue
		}
		priors = append(priors, p)
	}
	return priors, dropped
}

// toFloat coerces the duck-typed numeric encodings seen in upstream rows
// (JSON numbers, YAML ints/floats, quoted strings) to a finite float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
