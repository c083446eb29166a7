package crossmatch

// IdentityResolver is the single-radius resolver driven by PGC and
// designation signals. It holds no state beyond its
// configuration and is safe for concurrent use across disjoint evidence
// values.
type IdentityResolver struct {
	radiusDeg float64
	pgcColumn string // empty when claimed-PGC enrichment is disabled.
}

// NewIdentityResolver constructs an IdentityResolver. pgcColumn may be
// empty, in which case claimed-PGC signals are disabled throughout
// resolution (evidence.ClaimedPGC is expected to always be nil).
func NewIdentityResolver(radiusDeg float64, pgcColumn string) *IdentityResolver {
	return &IdentityResolver{radiusDeg: radiusDeg, pgcColumn: pgcColumn}
}

func (r *IdentityResolver) SearchRadiusDeg() float64 { return r.radiusDeg }

func (r *IdentityResolver) PGCColumn() (string, bool) {
	if r.pgcColumn == "" {
		return "", false
	}
	return r.pgcColumn, true
}

func (r *IdentityResolver) Resolve(e RecordEvidence) (Verdict, error) {
	var v Verdict
	switch len(e.Neighbors) {
	case 0:
		v = resolveNoNeighbors(e)
	case 1:
		v = resolveSingleNeighbor(e)
	default:
		v = resolveMultipleNeighbors(e)
	}
	if err := v.checkInvariants(); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

// resolveSingleNeighbor handles the case of exactly one neighbor.
func resolveSingleNeighbor(e RecordEvidence) Verdict {
	n := e.Neighbors[0]

	if e.ClaimedPGC != nil && *e.ClaimedPGC != n.PGC {
		return Verdict{
			RecordID:   e.RecordID,
			Status:     StatusExisting,
			Triage:     TriagePending,
			MatchedPGC: &n.PGC,
			Reason:     ReasonPGCMismatch,
		}
	}

	if e.ClaimedPGC == nil || isPreferred(n, e.ClaimedPGC, e.RecordDesignation) {
		return Verdict{
			RecordID:   e.RecordID,
			Status:     StatusExisting,
			Triage:     TriageResolved,
			MatchedPGC: &n.PGC,
		}
	}

	return Verdict{
		RecordID:   e.RecordID,
		Status:     StatusExisting,
		Triage:     TriagePending,
		MatchedPGC: &n.PGC,
		Reason:     ReasonSingleNeighborNoIdentityMatch,
	}
}

// resolveMultipleNeighbors handles the case of two or more neighbors.
func resolveMultipleNeighbors(e RecordEvidence) Verdict {
	var preferred []Neighbor
	for _, n := range e.Neighbors {
		if isPreferred(n, e.ClaimedPGC, e.RecordDesignation) {
			preferred = append(preferred, n)
		}
	}

	if len(preferred) == 1 {
		p := preferred[0]
		if e.ClaimedPGC == nil || p.PGC == *e.ClaimedPGC {
			return Verdict{
				RecordID:   e.RecordID,
				Status:     StatusExisting,
				Triage:     TriageResolved,
				MatchedPGC: &p.PGC,
			}
		}
		return Verdict{
			RecordID:   e.RecordID,
			Status:     StatusExisting,
			Triage:     TriagePending,
			MatchedPGC: &p.PGC,
			Reason:     ReasonPGCMismatch,
		}
	}

	pgcs := make([]int64, len(e.Neighbors))
	for i, n := range e.Neighbors {
		pgcs[i] = n.PGC
	}
	return Verdict{
		RecordID:      e.RecordID,
		Status:        StatusColliding,
		Triage:        TriagePending,
		CollidingPGCs: pgcs,
		Reason:        ReasonMultipleObjectsMatched,
	}
}

// resolveNoNeighbors handles the case of zero neighbors.
func resolveNoNeighbors(e RecordEvidence) Verdict {
	pgcsElsewhere := make(map[int64]struct{}, len(e.GlobalPGCsWithSameDesign)+1)
	for pgc := range e.GlobalPGCsWithSameDesign {
		pgcsElsewhere[pgc] = struct{}{}
	}
	if e.ClaimedPGC != nil && e.ClaimedPGCExists {
		pgcsElsewhere[*e.ClaimedPGC] = struct{}{}
	}

	if len(pgcsElsewhere) == 1 {
		var matched int64
		for pgc := range pgcsElsewhere {
			matched = pgc
		}
		_, fromDesignation := e.GlobalPGCsWithSameDesign[matched]
		reason := ReasonMatchedPGCOutsideCircle
		if fromDesignation {
			reason = ReasonMatchedNameOutsideCircle
		}
		return Verdict{
			RecordID:   e.RecordID,
			Status:     StatusExisting,
			Triage:     TriagePending,
			MatchedPGC: &matched,
			Reason:     reason,
		}
	}

	return Verdict{
		RecordID: e.RecordID,
		Status:   StatusNew,
		Triage:   TriageResolved,
	}
}
