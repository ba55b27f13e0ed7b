package main

import (
	"context"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/emissions-cli/internal/engine"
	"github.com/sells-group/emissions-cli/internal/factors"
	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/waterfall"
)

var (
	batchInput       string
	batchOutput      string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve every row of an activity CSV",
	Long: `Reads a CSV with activity, quantity and unit columns (region, description and
context are optional) and resolves each row independently. Failed rows are
reported alongside successful ones; one bad row never aborts the batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(batchInput)
		if err != nil {
			return eris.Wrapf(err, "batch: open %s", batchInput)
		}
		defer f.Close() //nolint:errcheck

		reqs, rows, err := parseBatchCSV(ctx, f)
		if err != nil {
			return err
		}

		eng, err := engine.Build(ctx, cfg)
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		report, err := processBatch(ctx, reqs, rows, concurrency, eng.Resolve)
		if err != nil {
			return err
		}
		report.Stats = eng.Stats()

		if batchOutput == "" {
			return printJSON(cmd.OutOrStdout(), report)
		}
		out, err := os.Create(batchOutput)
		if err != nil {
			return eris.Wrapf(err, "batch: create %s", batchOutput)
		}
		defer out.Close() //nolint:errcheck
		if err := printJSON(out, report); err != nil {
			return eris.Wrap(err, "batch: write report")
		}
		zap.L().Info("batch report written", zap.String("path", batchOutput))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "CSV file of activities")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write the JSON report here instead of stdout")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel resolutions (default from config)")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// BatchItem pairs one input row with its result.
type BatchItem struct {
	Row     int                  `json:"row"`
	Request engine.Request       `json:"request"`
	Result  model.EmissionResult `json:"result"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	RunID       string             `json:"run_id"`
	StartedAt   time.Time          `json:"started_at"`
	DurationMs  int64              `json:"duration_ms"`
	Total       int                `json:"total"`
	Succeeded   int64              `json:"succeeded"`
	Failed      int64              `json:"failed"`
	TotalCO2eKg float64            `json:"total_co2e_kg"`
	Items       []BatchItem        `json:"items"`
	Stats       waterfall.Snapshot `json:"stats"`
}

// resolveFunc is the callback signature for resolving one request.
type resolveFunc func(ctx context.Context, req engine.Request) model.EmissionResult

// processBatch resolves reqs with at most concurrency in flight. Items keep
// input order; rows[i] is the item's row number, or i+1 when rows is nil.
// It fails only when ctx is cancelled.
func processBatch(ctx context.Context, reqs []engine.Request, rows []int, concurrency int, resolve resolveFunc) (*BatchReport, error) {
	if rows != nil && len(rows) != len(reqs) {
		return nil, eris.Errorf("batch: %d row numbers for %d requests", len(rows), len(reqs))
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	report := &BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Total:     len(reqs),
		Items:     make([]BatchItem, len(reqs)),
	}
	log := zap.L().With(zap.String("component", "batch"), zap.String("run_id", report.RunID))
	log.Info("processing batch",
		zap.Int("rows", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, req := range reqs {
		row := i + 1
		if rows != nil {
			row = rows[i]
		}
		g.Go(func() error {
			res := resolve(gctx, req)
			item := BatchItem{Row: row, Request: req, Result: res}
			if math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
				// encoding/json rejects non-finite floats.
				item.Request.Quantity = 0
			}
			report.Items[i] = item
			if !res.Success {
				failed.Add(1)
				log.Debug("row not resolved",
					zap.Int("row", row),
					zap.String("activity", req.ActivityType),
					zap.String("error_code", string(res.ErrorCode)),
				)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: cancelled")
	}

	var total float64
	for _, it := range report.Items {
		if it.Result.Success {
			total += it.Result.CO2eKg
		}
	}
	report.TotalCO2eKg = model.Round(total, 2)
	report.Succeeded = succeeded.Load()
	report.Failed = failed.Load()
	report.DurationMs = time.Since(report.StartedAt).Milliseconds()

	log.Info("batch complete",
		zap.Int64("succeeded", report.Succeeded),
		zap.Int64("failed", report.Failed),
		zap.Float64("total_co2e_kg", report.TotalCO2eKg),
	)
	return report, nil
}

// batchColumns maps accepted header spellings to request fields.
var batchColumns = map[string]string{
	"activity":      "activity",
	"activity_type": "activity",
	"quantity":      "quantity",
	"qty":           "quantity",
	"unit":          "unit",
	"region":        "region",
	"description":   "description",
	"context":       "context",
}

// parseBatchCSV reads activity rows. A quantity that does not parse becomes
// NaN so the engine reports the row as INPUT_INVALID. Blank rows are skipped;
// the returned row numbers are 1-based data record positions, so they still
// point at the input record after a skip.
func parseBatchCSV(ctx context.Context, r io.Reader) ([]engine.Request, []int, error) {
	header, rows, err := factors.ReadCSV(ctx, r)
	if err != nil {
		return nil, nil, eris.Wrap(err, "batch: read input")
	}

	idx := make(map[string]int)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := batchColumns[key]; ok {
			if _, dup := idx[field]; !dup {
				idx[field] = i
			}
		}
	}
	for _, required := range []string{"activity", "quantity", "unit"} {
		if _, ok := idx[required]; !ok {
			return nil, nil, eris.Errorf("batch: input has no %s column", required)
		}
	}

	get := func(row []string, field string) string {
		i, ok := idx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	reqs := make([]engine.Request, 0, len(rows))
	lines := make([]int, 0, len(rows))
	for n, row := range rows {
		if len(strings.Join(row, "")) == 0 {
			continue
		}
		qty, err := strconv.ParseFloat(strings.ReplaceAll(get(row, "quantity"), ",", ""), 64)
		if err != nil {
			qty = math.NaN()
		}
		reqs = append(reqs, engine.Request{
			ActivityType: get(row, "activity"),
			Quantity:     qty,
			Unit:         get(row, "unit"),
			Region:       get(row, "region"),
			Description:  get(row, "description"),
			Context:      get(row, "context"),
		})
		lines = append(lines, n+1)
	}
	return reqs, lines, nil
}
