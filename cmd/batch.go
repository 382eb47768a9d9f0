package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pricing-cli/internal/estimate"
	"github.com/sells-group/pricing-cli/internal/prior"
)

var (
	batchInput      string
	batchOutput     string
	batchPriorsFile string
	batchWorkers    int
)

// batchJob is one prospective job read from the input CSV.
type batchJob struct {
	JobID      string
	Technology string
	Material   string
	PartsCount int
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Estimate price bands for a CSV of prospective jobs",
	Long: `Read jobs from a CSV (columns: job_id, technology, material,
parts_count), estimate each against a single priors snapshot, and write a
results CSV. The snapshot is loaded once, from the store or --priors-file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in, err := os.Open(batchInput)
		if err != nil {
			return eris.Wrapf(err, "batch: open %s", batchInput)
		}
		defer in.Close()

		jobs, err := parseJobs(in)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("no jobs to estimate")
			return nil
		}

		idx, err := loadPriorIndex(ctx, batchPriorsFile)
		if err != nil {
			return err
		}

		workers := batchWorkers
		if workers <= 0 {
			workers = cfg.Batch.MaxConcurrentJobs
		}

		results := make([]*estimate.Estimate, len(jobs))
		var estimated, missed atomic.Int64

		var g errgroup.Group
		g.SetLimit(workers)
		for i, job := range jobs {
			i, job := i, job
			g.Go(func() error {
				est := estimate.FromIndex(idx, job.Technology, job.Material, job.PartsCount)
				results[i] = est
				if est == nil {
					missed.Add(1)
					return nil
				}
				estimated.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := os.Stdout
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrapf(err, "batch: create %s", batchOutput)
			}
			defer f.Close()
			out = f
		}
		if err := writeResults(out, jobs, results); err != nil {
			return err
		}

		zap.L().Info("batch estimation complete",
			zap.Int("jobs", len(jobs)),
			zap.Int64("estimated", estimated.Load()),
			zap.Int64("no_data", missed.Load()))
		return nil
	},
}

// loadPriorIndex builds the shared snapshot index, either from a YAML file
// or by pulling every stored prior once.
func loadPriorIndex(ctx context.Context, file string) (estimate.Index, error) {
	if file != "" {
		rows, err := prior.LoadFile(file)
		if err != nil {
			return nil, err
		}
		priors, dropped := prior.NormalizeAll(rows)
		if dropped > 0 {
			zap.L().Warn("dropped malformed prior rows",
				zap.String("file", file), zap.Int("dropped", dropped))
		}
		return estimate.BuildIndex(priors, zap.L()), nil
	}

	priorStore, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	priors, err := priorStore.All(ctx)
	if err != nil {
		return nil, err
	}
	return estimate.BuildIndex(priors, zap.L()), nil
}

// parseJobs reads the input CSV. A header row is required; job_id is
// optional and defaults to the row number. parts_count may be blank for
// unbucketed jobs.
func parseJobs(r io.Reader) ([]batchJob, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "batch: read CSV header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["technology"]; !ok {
		return nil, eris.New("batch: CSV is missing a technology column")
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var jobs []batchJob
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read CSV line %d", line)
		}

		job := batchJob{
			JobID:      field(record, "job_id"),
			Technology: field(record, "technology"),
			Material:   field(record, "material"),
		}
		if job.JobID == "" {
			job.JobID = strconv.Itoa(line - 1)
		}
		if raw := field(record, "parts_count"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "batch: invalid parts_count %q on line %d", raw, line)
			}
			job.PartsCount = n
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// writeResults writes one output row per job, aligned with the input
// order. Jobs with no estimate get an empty band and confidence "unknown".
func writeResults(w io.Writer, jobs []batchJob, results []*estimate.Estimate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"job_id", "technology", "material", "parts_count", "p10", "p50", "p90", "confidence", "source"}); err != nil {
		return eris.Wrap(err, "batch: write CSV header")
	}

	for i, job := range jobs {
		record := []string{
			job.JobID,
			job.Technology,
			job.Material,
			strconv.Itoa(job.PartsCount),
			"", "", "", string(estimate.ConfidenceUnknown), "",
		}
		if est := results[i]; est != nil {
			record[4] = strconv.FormatFloat(est.P10, 'f', 2, 64)
			record[5] = strconv.FormatFloat(est.P50, 'f', 2, 64)
			record[6] = strconv.FormatFloat(est.P90, 'f', 2, 64)
			record[7] = string(est.Confidence)
			record[8] = string(est.Source)
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "batch: write CSV row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "batch: flush CSV")
	}
	return nil
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchInput, "input", "", "input CSV of prospective jobs")
	f.StringVar(&batchOutput, "output", "", "output CSV path (default: stdout)")
	f.StringVar(&batchPriorsFile, "priors-file", "", "YAML priors snapshot; skips the store")
	f.IntVar(&batchWorkers, "concurrency", 0, "max concurrent estimates (0 = config default)")
	_ = batchCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(batchCmd)
}
