// Package store persists pre-aggregated price priors in Postgres and
// serves the point lookups behind the estimator.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/db"
	"github.com/sells-group/pricing-cli/internal/prior"
)

// priorsTable is the fully qualified priors table. NULL technology encodes
// the global cohort, NULL material/parts_bucket encode absent dimensions,
// so lookups use IS NOT DISTINCT FROM throughout.
const priorsTable = "pricing.price_priors"

const migration = `
CREATE SCHEMA IF NOT EXISTS pricing;

CREATE TABLE IF NOT EXISTS pricing.price_priors (
	technology   TEXT,
	material     TEXT,
	parts_bucket TEXT CHECK (parts_bucket IN ('1', '2-3', '4-10', '11+')),
	n            BIGINT NOT NULL DEFAULT 0,
	p10          DOUBLE PRECISION NOT NULL,
	p50          DOUBLE PRECISION NOT NULL,
	p90          DOUBLE PRECISION NOT NULL,
	loaded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS price_priors_cohort
	ON pricing.price_priors (technology, material, parts_bucket)
	NULLS NOT DISTINCT;
`

var priorColumns = []string{"technology", "material", "parts_bucket", "n", "p10", "p50", "p90"}

// PriorStore implements estimate.PriorSource over Postgres.
type PriorStore struct {
	pool db.Pool
}

// New creates a PriorStore. Returns nil if pool is nil.
func New(pool db.Pool) *PriorStore {
	if pool == nil {
		return nil
	}
	return &PriorStore{pool: pool}
}

// Migrate creates the priors schema, table, and cohort index.
func (s *PriorStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return eris.Wrap(err, "store: migrate priors schema")
	}
	return nil
}

// Supported reports whether the priors table exists. This is the
// feature-level pre-flight: false means the schema was never provisioned,
// which is not the same thing as a cohort having no row.
func (s *PriorStore) Supported(ctx context.Context) (bool, error) {
	var reg *string
	err := s.pool.QueryRow(ctx, `SELECT to_regclass('pricing.price_priors')::text`).Scan(&reg)
	if err != nil {
		return false, eris.Wrap(err, "store: check priors table")
	}
	return reg != nil, nil
}

// Get returns the prior for an exact group key, or (nil, nil) when no row
// exists. Absent dimensions match rows explicitly stored NULL, never "any".
func (s *PriorStore) Get(ctx context.Context, key prior.GroupKey) (*prior.Prior, error) {
	tech, mat, bucket := keyColumns(key)

	var (
		n             int64
		p10, p50, p90 float64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT n, p10, p50, p90
		FROM pricing.price_priors
		WHERE technology IS NOT DISTINCT FROM $1
		  AND material IS NOT DISTINCT FROM $2
		  AND parts_bucket IS NOT DISTINCT FROM $3`,
		tech, mat, bucket,
	).Scan(&n, &p10, &p50, &p90)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: get prior %s", key)
	}

	samples := int(n)
	if samples < 0 {
		samples = 0
	}
	return &prior.Prior{Key: key, N: samples, P10: p10, P50: p50, P90: p90}, nil
}

// All returns every stored prior, for callers that estimate against a full
// in-memory snapshot instead of per-key lookups.
func (s *PriorStore) All(ctx context.Context) ([]prior.Prior, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT technology, material, parts_bucket, n, p10, p50, p90
		FROM pricing.price_priors`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list priors")
	}
	defer rows.Close()

	var priors []prior.Prior
	for rows.Next() {
		var (
			tech, mat, bucket *string
			n                 int64
			p10, p50, p90     float64
		)
		if err := rows.Scan(&tech, &mat, &bucket, &n, &p10, &p50, &p90); err != nil {
			return nil, eris.Wrap(err, "store: scan prior")
		}
		priors = append(priors, prior.Prior{
			Key: columnsKey(tech, mat, bucket),
			N:   int(max(n, 0)),
			P10: p10,
			P50: p50,
			P90: p90,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate priors")
	}
	return priors, nil
}

// ReplaceAll swaps the stored snapshot for the given priors in one
// transaction: upstream aggregation always produces complete snapshots, so
// the loader replaces rather than merges.
func (s *PriorStore) ReplaceAll(ctx context.Context, priors []prior.Prior) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "store: replace priors: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pricing.price_priors`); err != nil {
		return 0, eris.Wrap(err, "store: replace priors: clear table")
	}

	rows := make([][]any, 0, len(priors))
	for _, p := range priors {
		tech, mat, bucket := keyColumns(p.Key)
		rows = append(rows, []any{tech, mat, bucket, int64(p.N), p.P10, p.P50, p.P90})
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"pricing", "price_priors"}, priorColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "store: replace priors: COPY into %s", priorsTable)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "store: replace priors: commit tx")
	}
	return n, nil
}

// LevelStats summarizes stored priors for one ladder rung.
type LevelStats struct {
	Source  prior.Source
	Rows    int64
	Samples int64
}

// Stats returns per-rung row counts and sample totals, ordered most
// specific first. Rungs with no rows are omitted.
func (s *PriorStore) Stats(ctx context.Context) ([]LevelStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT CASE
			WHEN technology IS NULL THEN 'global'
			WHEN material IS NOT NULL AND parts_bucket IS NOT NULL THEN 'tech+mat+parts'
			WHEN material IS NOT NULL THEN 'tech+mat'
			WHEN parts_bucket IS NOT NULL THEN 'tech+parts'
			ELSE 'tech'
		END AS level, COUNT(*), COALESCE(SUM(n), 0)
		FROM pricing.price_priors
		GROUP BY 1`)
	if err != nil {
		return nil, eris.Wrap(err, "store: priors stats")
	}
	defer rows.Close()

	byLevel := make(map[prior.Source]LevelStats)
	for rows.Next() {
		var (
			level         string
			count, sample int64
		)
		if err := rows.Scan(&level, &count, &sample); err != nil {
			return nil, eris.Wrap(err, "store: scan stats")
		}
		byLevel[prior.Source(level)] = LevelStats{Source: prior.Source(level), Rows: count, Samples: sample}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate stats")
	}

	ladder := []prior.Source{
		prior.SourceTechMatParts,
		prior.SourceTechMat,
		prior.SourceTechParts,
		prior.SourceTech,
		prior.SourceGlobal,
	}
	var out []LevelStats
	for _, src := range ladder {
		if st, ok := byLevel[src]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

// keyColumns maps a group key to its nullable column representation.
func keyColumns(key prior.GroupKey) (tech, mat, bucket *string) {
	if !key.Technology.IsGlobal() {
		name := key.Technology.Name()
		tech = &name
	}
	if key.Material != "" {
		m := key.Material
		mat = &m
	}
	if key.Bucket != prior.BucketNone {
		b := string(key.Bucket)
		bucket = &b
	}
	return tech, mat, bucket
}

// columnsKey is the inverse of keyColumns.
func columnsKey(tech, mat, bucket *string) prior.GroupKey {
	key := prior.GroupKey{Technology: prior.Global()}
	if tech != nil {
		key.Technology = prior.Tech(*tech)
	}
	if mat != nil {
		key.Material = *mat
	}
	if bucket != nil {
		key.Bucket = prior.PartsBucket(*bucket)
	}
	return key
}
