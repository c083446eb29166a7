package storage

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/ledamatch/internal/crossmatch"
)

// EnrichmentResult is the output of the three C7 probes for one page:
// the raw row's claimed PGC (if the raw table has that column), which of
// the claimed PGCs actually exist in the canonical catalog, and the
// catalog-wide PGC set sharing each designation seen in the page.
//
// Enrichment never fails per record; a missing row from any of the three
// queries just leaves the corresponding evidence field nil, or for a
// designation an empty set (an enrichment gap, never fatal).
type EnrichmentResult struct {
	ClaimedPGCByRecord map[string]int64
	ExistingPGCs       map[int64]struct{}
	PGCsByDesignation  map[string]map[int64]struct{}
}

// Enrich runs the three C7 probes concurrently: they are independent
// read-only queries over the same page, so fanning them out with an
// errgroup shortens wall-clock per batch without touching any shared
// mutable state — each probe only ever writes into its own result field.
func (db *DB) Enrich(ctx context.Context, tableName string, recordIDs []string, pgcColumn string, designations []string) (EnrichmentResult, error) {
	var result EnrichmentResult
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if pgcColumn == "" {
			return nil
		}
		m, err := db.claimedPGCsByRecord(ctx, tableName, pgcColumn, recordIDs)
		if err != nil {
			return err
		}
		result.ClaimedPGCByRecord = m
		return nil
	})

	g.Go(func() error {
		// Depends on nothing from the other two goroutines, but needs the
		// claimed-PGC values, so it re-derives its own input: querying the
		// raw table a second time for the distinct claimed PGC values is
		// cheaper than serializing after the first goroutine.
		if pgcColumn == "" {
			return nil
		}
		claimed, err := db.distinctClaimedPGCs(ctx, tableName, pgcColumn, recordIDs)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		existing, err := db.probeExistingPGCs(ctx, claimed)
		if err != nil {
			return err
		}
		result.ExistingPGCs = existing
		return nil
	})

	g.Go(func() error {
		if len(designations) == 0 {
			return nil
		}
		m, err := db.expandDesignations(ctx, designations)
		if err != nil {
			return err
		}
		result.PGCsByDesignation = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return EnrichmentResult{}, err
	}
	return result, nil
}

// claimedPGCsByRecord queries rawdata.<table_name> for the claimed PGC of
// each record in the page. The table and column names come from
// configuration, not user input, but are still passed through
// pgx.Identifier quoting in buildClaimedPGCQuery (identifiers.go).
func (db *DB) claimedPGCsByRecord(ctx context.Context, tableName, pgcColumn string, recordIDs []string) (map[string]int64, error) {
	query := buildClaimedPGCQuery(tableName, pgcColumn)
	rows, err := db.pool.Query(ctx, query, recordIDs)
	if err != nil {
		return nil, &crossmatch.StoreError{Detail: "enrich: claimed pgc by record", Err: err}
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var recordID string
		var pgc *int64
		if err := rows.Scan(&recordID, &pgc); err != nil {
			return nil, &crossmatch.StoreError{Detail: "enrich: scan claimed pgc", Err: err}
		}
		if pgc != nil {
			out[recordID] = *pgc
		}
	}
	return out, rows.Err()
}

func (db *DB) distinctClaimedPGCs(ctx context.Context, tableName, pgcColumn string, recordIDs []string) ([]int64, error) {
	m, err := db.claimedPGCsByRecord(ctx, tableName, pgcColumn, recordIDs)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(m))
	out := make([]int64, 0, len(m))
	for _, pgc := range m {
		if _, ok := seen[pgc]; !ok {
			seen[pgc] = struct{}{}
			out = append(out, pgc)
		}
	}
	return out, nil
}

func (db *DB) probeExistingPGCs(ctx context.Context, claimedPGCs []int64) (map[int64]struct{}, error) {
	rows, err := db.pool.Query(ctx, "SELECT pgc FROM layer2.icrs WHERE pgc = ANY($1)", claimedPGCs)
	if err != nil {
		return nil, &crossmatch.StoreError{Detail: "enrich: probe existing pgcs", Err: err}
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var pgc int64
		if err := rows.Scan(&pgc); err != nil {
			return nil, &crossmatch.StoreError{Detail: "enrich: scan existing pgc", Err: err}
		}
		out[pgc] = struct{}{}
	}
	return out, rows.Err()
}

func (db *DB) expandDesignations(ctx context.Context, designations []string) (map[string]map[int64]struct{}, error) {
	rows, err := db.pool.Query(ctx,
		"SELECT design, pgc FROM layer2.designation WHERE design = ANY($1)", designations)
	if err != nil {
		return nil, &crossmatch.StoreError{Detail: "enrich: expand designations", Err: err}
	}
	defer rows.Close()

	out := make(map[string]map[int64]struct{}, len(designations))
	for rows.Next() {
		var design string
		var pgc int64
		if err := rows.Scan(&design, &pgc); err != nil {
			return nil, &crossmatch.StoreError{Detail: "enrich: scan designation", Err: err}
		}
		if out[design] == nil {
			out[design] = make(map[int64]struct{})
		}
		out[design][pgc] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Missing keys map to the empty set rather than being absent, so
	// callers can look designations up without a second nil check.
	for _, d := range designations {
		if _, ok := out[d]; !ok {
			out[d] = map[int64]struct{}{}
		}
	}
	return out, nil
}
