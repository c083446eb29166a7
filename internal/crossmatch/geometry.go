package crossmatch

import "math"

// AngularDistanceDeg is the small-angle flat-sky approximation used as the
// authoritative post-filter on every candidate the store's spatial index
// returns. The index is expected to overselect (see the store-side
// ST_DWithin pre-filter in storage.FetchBatch); this function is what
// actually decides whether a candidate becomes a Neighbor.
func AngularDistanceDeg(ra1, dec1, ra2, dec2 float64) float64 {
	dDec := dec1 - dec2
	meanDecRad := ((dec1 + dec2) / 2) * math.Pi / 180
	dRA := (ra1 - ra2) * math.Cos(meanDecRad)
	return math.Hypot(dDec, dRA)
}
