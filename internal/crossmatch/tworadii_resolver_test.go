package crossmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTolerance = 3e-4

func TestTwoRadiiResolver_PureNew(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{RecordID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, StatusNew, v.Status)
	assert.Equal(t, TriageResolved, v.Triage)
}

func TestTwoRadiiResolver_MultipleInInnerRadius(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID: "t2",
		Neighbors: []Neighbor{
			{PGC: 10, DistanceDeg: 0.1 / 3600},
			{PGC: 11, DistanceDeg: 0.2 / 3600},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusColliding, v.Status)
	assert.Equal(t, TriagePending, v.Triage)
	assert.Equal(t, []int64{10, 11}, v.CollidingPGCs)
	assert.Equal(t, ReasonMultipleInInnerRadius, v.Reason)
}

func TestTwoRadiiResolver_SingleInnerWithOuterNeighbors(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID: "t3",
		Neighbors: []Neighbor{
			{PGC: 20, DistanceDeg: 0.5 / 3600},
			{PGC: 21, DistanceDeg: 2.0 / 3600},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusColliding, v.Status)
	assert.Equal(t, TriagePending, v.Triage)
	assert.Nil(t, v.MatchedPGC)
	assert.Equal(t, []int64{20, 21}, v.CollidingPGCs, "inner pgc must be first")
	assert.Equal(t, ReasonSingleInInnerWithOuterNeighbors, v.Reason)
}

func TestTwoRadiiResolver_SingleInnerOnly(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:  "t4",
		Neighbors: []Neighbor{{PGC: 30, DistanceDeg: 0.5 / 3600}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, v.Status)
	assert.Equal(t, TriageResolved, v.Triage)
	require.NotNil(t, v.MatchedPGC)
	assert.Equal(t, int64(30), *v.MatchedPGC)
}

func TestTwoRadiiResolver_SingleOuterOnly(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:  "t5",
		Neighbors: []Neighbor{{PGC: 40, DistanceDeg: 2.0 / 3600}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, v.Status)
	assert.Equal(t, TriagePending, v.Triage)
	require.NotNil(t, v.MatchedPGC)
	assert.Equal(t, int64(40), *v.MatchedPGC)
	assert.Equal(t, ReasonSingleInOuterRadiusOnly, v.Reason)
}

func TestTwoRadiiResolver_MultipleInOuterRadius(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID: "t6",
		Neighbors: []Neighbor{
			{PGC: 50, DistanceDeg: 2.0 / 3600},
			{PGC: 51, DistanceDeg: 2.5 / 3600},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusColliding, v.Status)
	assert.Equal(t, []int64{50, 51}, v.CollidingPGCs)
	assert.Equal(t, ReasonMultipleInOuterRadius, v.Reason)
}

func TestTwoRadiiResolver_BeyondOuterRadiusIsIgnored(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:  "t7",
		Neighbors: []Neighbor{{PGC: 60, DistanceDeg: 10.0 / 3600}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNew, v.Status)
}

// S7 Two-radii redshift promotion: two inner neighbors, both with
// redshift; record z close to exactly one -> demoted from colliding to
// existing/resolved, matched to that neighbor's pgc.
func TestTwoRadiiResolver_S7_RedshiftPromotion(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	recordZ := f(0.0201)
	v, err := r.Resolve(RecordEvidence{
		RecordID:       "r7",
		RecordRedshift: recordZ,
		Neighbors: []Neighbor{
			{PGC: 70, DistanceDeg: 0.1 / 3600, Redshift: f(0.0200)}, // close
			{PGC: 71, DistanceDeg: 0.2 / 3600, Redshift: f(0.5000)}, // far
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, v.Status)
	assert.Equal(t, TriageResolved, v.Triage)
	require.NotNil(t, v.MatchedPGC)
	assert.Equal(t, int64(70), *v.MatchedPGC)
	assert.Empty(t, v.Reason)
}

func TestTwoRadiiResolver_RedshiftRefinement_ExistingPromotedWhenClose(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:       "t8",
		RecordRedshift: f(0.01005),
		Neighbors:      []Neighbor{{PGC: 80, DistanceDeg: 0.5 / 3600, Redshift: f(0.01000)}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, v.Status)
	assert.Equal(t, TriageResolved, v.Triage)
	assert.Empty(t, v.Reason)
}

func TestTwoRadiiResolver_RedshiftRefinement_ExistingMismatchStaysPending(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:       "t9",
		RecordRedshift: f(0.5),
		Neighbors:      []Neighbor{{PGC: 90, DistanceDeg: 2.0 / 3600, Redshift: f(0.01)}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, v.Status)
	assert.Equal(t, TriagePending, v.Triage)
	assert.Equal(t, ReasonRedshiftMismatch, v.Reason)
}

func TestTwoRadiiResolver_RedshiftRefinement_NoNeighborRedshiftLeavesUnchanged(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:       "t10",
		RecordRedshift: f(0.01),
		Neighbors:      []Neighbor{{PGC: 100, DistanceDeg: 0.5 / 3600}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, v.Status)
	assert.Equal(t, TriageResolved, v.Triage, "coordinate verdict was already resolved; absent neighbor redshift leaves it unchanged")
}

func TestTwoRadiiResolver_RedshiftRefinement_CollidingUnchangedWhenAnyLacksRedshift(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:       "t11",
		RecordRedshift: f(0.01),
		Neighbors: []Neighbor{
			{PGC: 110, DistanceDeg: 0.1 / 3600, Redshift: f(0.01)},
			{PGC: 111, DistanceDeg: 0.2 / 3600, Redshift: nil},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusColliding, v.Status)
	assert.Equal(t, ReasonMultipleInInnerRadius, v.Reason)
}

func TestTwoRadiiResolver_RedshiftRefinement_CollidingMultipleCloseStaysColliding(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	v, err := r.Resolve(RecordEvidence{
		RecordID:       "t12",
		RecordRedshift: f(0.01),
		Neighbors: []Neighbor{
			{PGC: 120, DistanceDeg: 0.1 / 3600, Redshift: f(0.01)},
			{PGC: 121, DistanceDeg: 0.2 / 3600, Redshift: f(0.01)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusColliding, v.Status)
	assert.Equal(t, []int64{120, 121}, v.CollidingPGCs)
}

// Property 1: determinism & purity.
func TestTwoRadiiResolver_Property_DeterminismAndPurity(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)
	e := RecordEvidence{
		RecordID:       "rp1",
		RecordRedshift: f(0.01),
		Neighbors: []Neighbor{
			{PGC: 1, DistanceDeg: 0.1 / 3600, Redshift: f(0.01)},
			{PGC: 2, DistanceDeg: 0.2 / 3600, Redshift: f(0.5)},
		},
	}
	v1, err1 := r.Resolve(e)
	v2, err2 := r.Resolve(e)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, v1, v2)
}

// Property 6: two-radii monotonicity — moving a neighbor from outer to
// inner radius must not improve triage from pending to resolved unless
// redshift data promotes it. With no redshift data at all, the
// outer-only (pending) case must never become resolved by the inner-only
// move without also losing the other neighbor.
func TestTwoRadiiResolver_Property_TwoRadiiMonotonicity(t *testing.T) {
	r := NewTwoRadiiResolver(1.0/3600, 3.0/3600, testTolerance)

	outerOnly, err := r.Resolve(RecordEvidence{
		RecordID:  "mono-outer",
		Neighbors: []Neighbor{{PGC: 1, DistanceDeg: 2.0 / 3600}},
	})
	require.NoError(t, err)
	assert.Equal(t, TriagePending, outerOnly.Triage)

	innerWithOuterNeighbor, err := r.Resolve(RecordEvidence{
		RecordID: "mono-inner-plus-outer",
		Neighbors: []Neighbor{
			{PGC: 1, DistanceDeg: 0.5 / 3600},
			{PGC: 2, DistanceDeg: 2.5 / 3600},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, TriagePending, innerWithOuterNeighbor.Triage, "moving pgc=1 inward while pgc=2 remains in range must not resolve triage without redshift support")
}

// Property 7: redshift idempotence — applying the refinement twice is the
// same as applying it once.
func TestTwoRadiiResolver_Property_RedshiftIdempotence(t *testing.T) {
	inner := []Neighbor{
		{PGC: 1, DistanceDeg: 0.1 / 3600, Redshift: f(0.01)},
		{PGC: 2, DistanceDeg: 0.2 / 3600, Redshift: f(0.5)},
	}
	e := RecordEvidence{RecordID: "idem", RecordRedshift: f(0.01), Neighbors: inner}

	base := coordinateVerdict(e.RecordID, inner, nil)
	once := refineWithRedshift(base, e, inner, nil, testTolerance)
	twice := refineWithRedshift(once, e, inner, nil, testTolerance)
	assert.Equal(t, once, twice)
}

func f(v float64) *float64 { return &v }
