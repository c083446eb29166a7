package crossmatch

// TwoRadiiResolver splits neighbors into an inner and an outer ring and,
// when the record carries a redshift, refines the coordinate-only verdict
// against the neighbors' redshifts.
type TwoRadiiResolver struct {
	innerRadiusDeg    float64
	outerRadiusDeg    float64
	redshiftTolerance float64
}

// NewTwoRadiiResolver constructs a TwoRadiiResolver. r1 and r2 are degrees
// with 0 < r1 <= r2; callers are expected to have validated that in
// config.Validate (a ConfigError otherwise) before reaching here.
func NewTwoRadiiResolver(r1, r2, redshiftTolerance float64) *TwoRadiiResolver {
	return &TwoRadiiResolver{innerRadiusDeg: r1, outerRadiusDeg: r2, redshiftTolerance: redshiftTolerance}
}

func (r *TwoRadiiResolver) SearchRadiusDeg() float64 { return r.outerRadiusDeg }

// PGCColumn is always disabled for the two-radii resolver: it has no use
// for a claimed-PGC signal, only coordinates and (optionally) redshift.
func (r *TwoRadiiResolver) PGCColumn() (string, bool) { return "", false }

func (r *TwoRadiiResolver) Resolve(e RecordEvidence) (Verdict, error) {
	var inner, outer []Neighbor
	for _, n := range e.Neighbors {
		switch {
		case n.DistanceDeg <= r.innerRadiusDeg:
			inner = append(inner, n)
		case n.DistanceDeg <= r.outerRadiusDeg:
			outer = append(outer, n)
		}
	}

	v := coordinateVerdict(e.RecordID, inner, outer)
	v = refineWithRedshift(v, e, inner, outer, r.redshiftTolerance)

	if err := v.checkInvariants(); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

// coordinateVerdict classifies inner/outer neighbor counts, purely on distance.
func coordinateVerdict(recordID string, inner, outer []Neighbor) Verdict {
	switch {
	case len(inner) >= 2:
		return Verdict{
			RecordID:      recordID,
			Status:        StatusColliding,
			Triage:        TriagePending,
			CollidingPGCs: pgcsOf(inner),
			Reason:        ReasonMultipleInInnerRadius,
		}
	case len(inner) == 1 && len(outer) >= 1:
		pgc := inner[0].PGC
		return Verdict{
			RecordID:      recordID,
			Status:        StatusColliding,
			Triage:        TriagePending,
			MatchedPGC:    nil,
			CollidingPGCs: append([]int64{pgc}, pgcsOf(outer)...),
			Reason:        ReasonSingleInInnerWithOuterNeighbors,
		}
	case len(inner) == 1:
		pgc := inner[0].PGC
		return Verdict{
			RecordID:   recordID,
			Status:     StatusExisting,
			Triage:     TriageResolved,
			MatchedPGC: &pgc,
		}
	case len(outer) == 1:
		pgc := outer[0].PGC
		return Verdict{
			RecordID:   recordID,
			Status:     StatusExisting,
			Triage:     TriagePending,
			MatchedPGC: &pgc,
			Reason:     ReasonSingleInOuterRadiusOnly,
		}
	case len(outer) >= 2:
		return Verdict{
			RecordID:      recordID,
			Status:        StatusColliding,
			Triage:        TriagePending,
			CollidingPGCs: pgcsOf(outer),
			Reason:        ReasonMultipleInOuterRadius,
		}
	default:
		return Verdict{
			RecordID: recordID,
			Status:   StatusNew,
			Triage:   TriageResolved,
		}
	}
}

func pgcsOf(ns []Neighbor) []int64 {
	out := make([]int64, len(ns))
	for i, n := range ns {
		out[i] = n.PGC
	}
	return out
}

func closeRedshift(x, y, tolerance float64) bool {
	d := x - y
	if d < 0 {
		d = -d
	}
	return d < tolerance
}

func findByPGC(ns []Neighbor, pgc int64) (Neighbor, bool) {
	for _, n := range ns {
		if n.PGC == pgc {
			return n, true
		}
	}
	return Neighbor{}, false
}

// refineWithRedshift applies the redshift refinement pass. It runs only
// when the record has a redshift; otherwise v is returned unchanged.
func refineWithRedshift(v Verdict, e RecordEvidence, inner, outer []Neighbor, tolerance float64) Verdict {
	if e.RecordRedshift == nil {
		return v
	}

	switch v.Status {
	case StatusExisting:
		n, ok := findByPGC(append(append([]Neighbor{}, inner...), outer...), *v.MatchedPGC)
		if !ok || n.Redshift == nil {
			return v
		}
		if closeRedshift(*e.RecordRedshift, *n.Redshift, tolerance) {
			v.Triage = TriageResolved
			v.Reason = ""
			return v
		}
		v.Triage = TriagePending
		v.Reason = ReasonRedshiftMismatch
		return v

	case StatusColliding:
		involved := make([]Neighbor, 0, len(v.CollidingPGCs))
		all := append(append([]Neighbor{}, inner...), outer...)
		for _, pgc := range v.CollidingPGCs {
			n, ok := findByPGC(all, pgc)
			if !ok {
				return v
			}
			involved = append(involved, n)
		}
		for _, n := range involved {
			if n.Redshift == nil {
				return v
			}
		}

		var closeOnes []Neighbor
		for _, n := range involved {
			if closeRedshift(*e.RecordRedshift, *n.Redshift, tolerance) {
				closeOnes = append(closeOnes, n)
			}
		}
		if len(closeOnes) == 1 {
			pgc := closeOnes[0].PGC
			return Verdict{
				RecordID:   v.RecordID,
				Status:     StatusExisting,
				Triage:     TriageResolved,
				MatchedPGC: &pgc,
			}
		}
		return v

	default: // StatusNew
		return v
	}
}
