package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/ledamatch/internal/crossmatch"
)

// batchQuery is the per-page join driving a batch fetch: a window
// of layer0.records ordered by id, left-joined against its own ICRS
// coordinates and designation, and against every layer2.icrs candidate
// within the store-side spatial pre-filter. The 0.01 floor on COS(dec)
// keeps the inflated search box from blowing up near the poles; see spec
// §9 for why the geometry is expressed as ST_MakePoint(dec, ra-180).
const batchQuery = `
WITH batch AS (
	SELECT rec.id
	FROM layer0.records rec
	WHERE rec.table_id = $1::bigint AND rec.id > COALESCE(NULLIF($2, '')::bigint, 0)
	ORDER BY rec.id ASC
	LIMIT $3
)
SELECT
	b.id::text AS new_id,
	nc.ra AS new_ra,
	nc.dec AS new_dec,
	new_desig.design AS new_design,
	l2.pgc AS existing_pgc,
	l2.ra AS existing_ra,
	l2.dec AS existing_dec,
	l2_desig.design AS existing_design,
	l2z.z AS existing_redshift
FROM batch b
LEFT JOIN icrs.data nc ON b.id = nc.record_id
LEFT JOIN designation.data new_desig ON b.id = new_desig.record_id
LEFT JOIN layer2.icrs l2
	ON nc.record_id IS NOT NULL
	AND ST_DWithin(
		ST_MakePoint(nc.dec, nc.ra - 180),
		ST_MakePoint(l2.dec, l2.ra - 180),
		$4 / GREATEST(COS(RADIANS(nc.dec)), 0.01)
	)
LEFT JOIN layer2.designation l2_desig ON l2.pgc = l2_desig.pgc
LEFT JOIN layer2.redshift l2z ON l2.pgc = l2z.pgc
ORDER BY b.id ASC
`

// Candidate is one layer2.icrs row joined onto a raw record, before the
// in-process angular post-filter narrows it to a Neighbor.
type Candidate struct {
	RA, Dec  float64
	PGC      int64
	Design   *string
	Redshift *float64
}

// PageRecord is one raw record's coordinates, designation, and unfiltered
// candidate list, as coalesced out of batchQuery's row set.
type PageRecord struct {
	RA          *float64
	Dec         *float64
	Designation *string
	Candidates  []Candidate
}

// Page is one page of FetchBatch results. Order preserves the record ids'
// first-appearance order in the row set (which batchQuery sorts by id
// ascending), since a Go map has no iteration order of its own and a
// batch's verdict encounter order follows the iteration order of the
// page's record-id map.
type Page struct {
	Records map[string]*PageRecord
	Order   []string
}

// FetchBatch pulls one page of records for tableID ordered by id ascending,
// starting strictly after lastID, bounded by batchSize rows, with
// candidates pre-filtered to radiusDeg. It returns the page coalesced by
// record id and the new cursor (the last record id seen, or lastID
// unchanged if the page was empty).
func (db *DB) FetchBatch(ctx context.Context, tableID string, lastID string, batchSize int, radiusDeg float64) (*Page, string, error) {
	rows, err := db.pool.Query(ctx, batchQuery, tableID, lastID, batchSize, radiusDeg)
	if err != nil {
		return nil, lastID, &crossmatch.StoreError{Detail: "fetch batch", Err: err}
	}
	defer rows.Close()

	page := &Page{Records: make(map[string]*PageRecord)}
	newLastID := lastID
	for rows.Next() {
		var (
			newID                   string
			newRA, newDec           *float64
			newDesign               *string
			existingPGC             *int64
			existingRA, existingDec *float64
			existingDesign          *string
			existingRedshift        *float64
		)
		if err := rows.Scan(&newID, &newRA, &newDec, &newDesign,
			&existingPGC, &existingRA, &existingDec, &existingDesign, &existingRedshift); err != nil {
			return nil, lastID, &crossmatch.StoreError{Detail: "scan batch row", Err: err}
		}
		newLastID = newID

		rec, ok := page.Records[newID]
		if !ok {
			rec = &PageRecord{}
			page.Records[newID] = rec
			page.Order = append(page.Order, newID)
		}
		if newRA != nil {
			rec.RA, rec.Dec = newRA, newDec
		}
		if newDesign != nil {
			rec.Designation = newDesign
		}
		if existingPGC != nil && existingRA != nil && existingDec != nil {
			rec.Candidates = append(rec.Candidates, Candidate{
				RA: *existingRA, Dec: *existingDec, PGC: *existingPGC,
				Design: existingDesign, Redshift: existingRedshift,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, lastID, &crossmatch.StoreError{Detail: "iterate batch rows", Err: err}
	}

	return page, newLastID, nil
}

// ResolveTableID looks up the internal numeric id for a raw table name.
// Returns a *crossmatch.ConfigError when the table is unknown and a
// *crossmatch.StoreError for any other query failure — callers should treat
// a not-found row as fatal configuration, not a retryable store failure.
func (db *DB) ResolveTableID(ctx context.Context, tableName string) (string, error) {
	var id string
	err := db.pool.QueryRow(ctx,
		"SELECT id::text FROM layer0.tables WHERE table_name = $1", tableName,
	).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", &crossmatch.ConfigError{Detail: fmt.Sprintf("table not found: %s", tableName)}
		}
		return "", &crossmatch.StoreError{Detail: "resolve table id", Err: err}
	}
	return id, nil
}
