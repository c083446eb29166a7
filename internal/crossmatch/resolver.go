package crossmatch

import "strings"

// Resolver is the pure decision function over one record's evidence, plus
// the two pieces of configuration the batch driver needs to know about it
// up front: how wide a search circle to pre-filter on, and whether the raw
// table carries a claimed-PGC column worth enriching for.
//
// Deliberately an explicit interface, not duck typing: the driver always
// knows exactly which of the two concrete resolvers it holds.
type Resolver interface {
	// SearchRadiusDeg is the outer radius the batch driver uses for the
	// store-side spatial pre-filter and the in-process post-filter.
	SearchRadiusDeg() float64

	// PGCColumn names the claimed-PGC column on the raw table, or the zero
	// value when claimed-PGC enrichment is disabled for this resolver.
	PGCColumn() (column string, enabled bool)

	Resolve(evidence RecordEvidence) (Verdict, error)
}

// normalizedDesignationsEqual compares two designations under the rule a
// "preferred" neighbor relies on: both sides trimmed of surrounding
// whitespace and upcased; a nil on either side is never equal to anything.
func normalizedDesignationsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	return normalizeDesignation(*a) == normalizeDesignation(*b)
}

func normalizeDesignation(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// isPreferred reports whether n is a preferred neighbor of the record:
// its PGC equals the record's claimed PGC, or its designation matches the
// record's designation under normalized equality.
func isPreferred(n Neighbor, claimedPGC *int64, recordDesignation *string) bool {
	if claimedPGC != nil && n.PGC == *claimedPGC {
		return true
	}
	return normalizedDesignationsEqual(recordDesignation, n.Design)
}
