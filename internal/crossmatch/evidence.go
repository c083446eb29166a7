// Package crossmatch holds the pure, evidence-driven identity decision at
// the heart of the pipeline: given what a batch query and enrichment pass
// learned about one raw record, decide whether it names a new canonical
// object, an existing one, or several competing candidates.
//
// Nothing in this package touches a database, a clock, or the network; the
// batch driver in internal/pipeline feeds it values and reads verdicts back.
package crossmatch

// Neighbor is a candidate match pulled from the canonical catalog within
// (or near) the resolver's search radius.
type Neighbor struct {
	PGC         int64
	RA          float64
	Dec         float64
	DistanceDeg float64
	Design      *string // canonical designation, if the catalog has one.
	Redshift    *float64
}

// RecordEvidence is the immutable bundle of facts fed to a Resolver for one
// raw record. Construct it once per record per batch and never mutate it;
// resolvers rely on that to stay pure.
type RecordEvidence struct {
	RecordID  string
	Neighbors []Neighbor

	// RecordDesignation is assumed pre-normalized by the (out-of-scope)
	// name-normalization rule set; this package only ever compares it under
	// trim+upcase equality as a defensive measure, never re-derives it.
	RecordDesignation *string

	// GlobalPGCsWithSameDesign is the frozen set of PGCs known, catalog-wide,
	// to share RecordDesignation. Nil when RecordDesignation is nil; nil or
	// empty when the designation index had no rows for it.
	GlobalPGCsWithSameDesign map[int64]struct{}

	ClaimedPGC       *int64
	ClaimedPGCExists bool
	RecordRedshift   *float64
}
