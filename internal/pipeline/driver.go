// Package pipeline runs the batch driver: it pages through a raw table,
// enriches and resolves each record, tallies verdicts, and optionally
// writes them back through the admin API sink.
//
// It lives apart from internal/crossmatch because the driver needs both
// internal/storage and internal/adminapi, and crossmatch must stay free of
// both so it can be imported by storage for its error types without a
// cycle.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/ledamatch/internal/crossmatch"
	"github.com/ashita-ai/ledamatch/internal/storage"
	"github.com/ashita-ai/ledamatch/internal/telemetry"
)

// Store is the subset of *storage.DB the driver depends on.
type Store interface {
	ResolveTableID(ctx context.Context, tableName string) (string, error)
	FetchBatch(ctx context.Context, tableID, lastID string, batchSize int, radiusDeg float64) (*storage.Page, string, error)
	Enrich(ctx context.Context, tableName string, recordIDs []string, pgcColumn string, designations []string) (storage.EnrichmentResult, error)
}

// Sink is the subset of *adminapi.Client the driver depends on.
type Sink interface {
	SetCrossmatchResults(ctx context.Context, verdicts []crossmatch.Verdict) error
}

// Options configures one run of the driver.
type Options struct {
	TableName string
	BatchSize int

	// Write enables writing verdicts back through Sink. When false the
	// driver still resolves and tallies every record but never calls Sink.
	Write bool

	// PendingWriter, if non-nil, receives every TriagePending verdict as it
	// is produced, to print pending-triage records to a stream in the
	// "<record_id> <reason> [pgc: N | pgcs: N,N,…]" format of spec §6.
	PendingWriter func(v crossmatch.Verdict)
}

// tallyKey is the (status, triage, reason) grouping the driver accumulates
// counts over.
type tallyKey struct {
	Status crossmatch.Status
	Triage crossmatch.Triage
	Reason crossmatch.PendingReason
}

// Summary is the final accounting of one driver run: counts per
// (status, triage, reason), sorted by the tie-break rule in buildSummary,
// plus the total number of records visited.
type Summary struct {
	Total int
	Rows  []SummaryRow
}

// SummaryRow is one line of Summary, ready for tabular rendering.
type SummaryRow struct {
	Status crossmatch.Status
	Triage crossmatch.Triage
	Reason crossmatch.PendingReason
	Count  int
}

// Driver runs the batch loop against a Store, Sink, and Resolver.
type Driver struct {
	store    Store
	sink     Sink
	resolver crossmatch.Resolver
	logger   *slog.Logger

	recordsProcessed metric.Int64Counter
	verdictsTotal    metric.Int64Counter
	batchDuration    metric.Float64Histogram
}

// New builds a Driver. sink may be nil when Options.Write is always false.
func New(store Store, sink Sink, resolver crossmatch.Resolver, logger *slog.Logger) *Driver {
	meter := telemetry.Meter("ledamatch/pipeline")
	recordsProcessed, _ := meter.Int64Counter("crossmatch.records_processed",
		metric.WithDescription("Raw records visited by the batch driver"),
	)
	verdictsTotal, _ := meter.Int64Counter("crossmatch.verdicts",
		metric.WithDescription("Verdicts emitted, by status/triage/reason"),
	)
	batchDuration, _ := meter.Float64Histogram("crossmatch.batch.duration",
		metric.WithDescription("Wall-clock time to fetch, enrich, resolve, and (if enabled) write one page"),
		metric.WithUnit("ms"),
	)
	return &Driver{
		store:            store,
		sink:             sink,
		resolver:         resolver,
		logger:           logger,
		recordsProcessed: recordsProcessed,
		verdictsTotal:    verdictsTotal,
		batchDuration:    batchDuration,
	}
}

// Run executes the full batch loop against tableName until a page comes
// back empty or ctx is cancelled between batches.
func (d *Driver) Run(ctx context.Context, opts Options) (Summary, error) {
	tableID, err := d.store.ResolveTableID(ctx, opts.TableName)
	if err != nil {
		return Summary{}, err
	}

	pgcColumn, pgcEnabled := d.resolver.PGCColumn()
	radiusDeg := d.resolver.SearchRadiusDeg()

	tallies := make(map[tallyKey]int)
	total := 0
	cursor := ""

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("crossmatch run cancelled between batches", "table", opts.TableName, "records_processed", total)
			return buildSummary(total, tallies), ctx.Err()
		default:
		}

		start := time.Now()
		page, newCursor, err := d.store.FetchBatch(ctx, tableID, cursor, opts.BatchSize, radiusDeg)
		if err != nil {
			return buildSummary(total, tallies), err
		}
		if len(page.Order) == 0 {
			break
		}

		verdicts, err := d.resolveBatch(ctx, opts.TableName, pgcColumn, pgcEnabled, page)
		if err != nil {
			return buildSummary(total, tallies), err
		}

		for _, v := range verdicts {
			tallies[tallyKey{Status: v.Status, Triage: v.Triage, Reason: v.Reason}]++
			if v.Triage == crossmatch.TriagePending && opts.PendingWriter != nil {
				opts.PendingWriter(v)
			}
		}
		total += len(page.Order)

		if opts.Write && len(verdicts) > 0 {
			if d.sink == nil {
				return buildSummary(total, tallies), &crossmatch.WriteError{Detail: "write enabled but no sink configured"}
			}
			if err := d.sink.SetCrossmatchResults(ctx, verdicts); err != nil {
				return buildSummary(total, tallies), err
			}
		}

		elapsed := time.Since(start)
		d.batchDuration.Record(ctx, float64(elapsed.Milliseconds()))
		d.recordsProcessed.Add(ctx, int64(len(page.Order)))
		for _, v := range verdicts {
			d.verdictsTotal.Add(ctx, 1, metric.WithAttributes(
				attrStatus(v.Status), attrTriage(v.Triage), attrReason(v.Reason),
			))
		}

		d.logger.Debug("crossmatch batch complete",
			"table", opts.TableName,
			"cursor", newCursor,
			"records", len(page.Order),
			"verdicts", len(verdicts),
			"elapsed_ms", elapsed.Milliseconds(),
		)

		cursor = newCursor
	}

	return buildSummary(total, tallies), nil
}

// resolveBatch builds evidence for, and resolves, every record in page, in
// page.Order: the driver's own encounter order, which determines the
// order of colliding_pgcs in any collision verdict.
func (d *Driver) resolveBatch(ctx context.Context, tableName, pgcColumn string, pgcEnabled bool, page *storage.Page) ([]crossmatch.Verdict, error) {
	designations := collectDesignations(page)

	var effectivePGCColumn string
	if pgcEnabled {
		effectivePGCColumn = pgcColumn
	}
	enrichment, err := d.store.Enrich(ctx, tableName, page.Order, effectivePGCColumn, designations)
	if err != nil {
		return nil, err
	}

	radiusDeg := d.resolver.SearchRadiusDeg()
	verdicts := make([]crossmatch.Verdict, 0, len(page.Order))
	for _, recordID := range page.Order {
		rec := page.Records[recordID]
		evidence := buildEvidence(recordID, rec, enrichment, radiusDeg)

		verdict, err := d.resolver.Resolve(evidence)
		if err != nil {
			return nil, fmt.Errorf("pipeline: resolve record %s: %w", recordID, err)
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts, nil
}

// buildEvidence assembles one record's RecordEvidence, applying the
// in-process angular post-filter to the raw candidate list: only
// candidates within radiusDeg survive as Neighbors.
func buildEvidence(recordID string, rec *storage.PageRecord, enrichment storage.EnrichmentResult, radiusDeg float64) crossmatch.RecordEvidence {
	evidence := crossmatch.RecordEvidence{
		RecordID:          recordID,
		RecordDesignation: rec.Designation,
	}

	if claimed, ok := enrichment.ClaimedPGCByRecord[recordID]; ok {
		pgc := claimed
		evidence.ClaimedPGC = &pgc
		_, evidence.ClaimedPGCExists = enrichment.ExistingPGCs[claimed]
	}

	if rec.Designation != nil {
		if pgcs, ok := enrichment.PGCsByDesignation[*rec.Designation]; ok {
			frozen := make(map[int64]struct{}, len(pgcs))
			for pgc := range pgcs {
				frozen[pgc] = struct{}{}
			}
			evidence.GlobalPGCsWithSameDesign = frozen
		}
	}

	if rec.RA == nil || rec.Dec == nil {
		return evidence
	}
	for _, c := range rec.Candidates {
		dist := crossmatch.AngularDistanceDeg(*rec.RA, *rec.Dec, c.RA, c.Dec)
		if dist > radiusDeg {
			continue
		}
		evidence.Neighbors = append(evidence.Neighbors, crossmatch.Neighbor{
			PGC:         c.PGC,
			RA:          c.RA,
			Dec:         c.Dec,
			DistanceDeg: dist,
			Design:      c.Design,
			Redshift:    c.Redshift,
		})
	}
	return evidence
}

func collectDesignations(page *storage.Page) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range page.Order {
		d := page.Records[id].Designation
		if d == nil {
			continue
		}
		if _, ok := seen[*d]; ok {
			continue
		}
		seen[*d] = struct{}{}
		out = append(out, *d)
	}
	return out
}

func attrStatus(s crossmatch.Status) attribute.KeyValue {
	return attribute.String("crossmatch.status", string(s))
}

func attrTriage(t crossmatch.Triage) attribute.KeyValue {
	return attribute.String("crossmatch.triage", string(t))
}

func attrReason(r crossmatch.PendingReason) attribute.KeyValue {
	if r == "" {
		return attribute.String("crossmatch.reason", "none")
	}
	return attribute.String("crossmatch.reason", string(r))
}

// buildSummary sorts tallies by descending count, with ascending
// (status, triage, reason) as the deterministic tie-break.
func buildSummary(total int, tallies map[tallyKey]int) Summary {
	rows := make([]SummaryRow, 0, len(tallies))
	for k, count := range tallies {
		rows = append(rows, SummaryRow{Status: k.Status, Triage: k.Triage, Reason: k.Reason, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		if rows[i].Status != rows[j].Status {
			return rows[i].Status < rows[j].Status
		}
		if rows[i].Triage != rows[j].Triage {
			return rows[i].Triage < rows[j].Triage
		}
		return rows[i].Reason < rows[j].Reason
	})
	return Summary{Total: total, Rows: rows}
}
