package adminapi

import (
	"context"
	"sort"

	"github.com/ashita-ai/ledamatch/internal/crossmatch"
)

// newStatusPayload, existingStatusPayload and collidedStatusPayload are the
// three optional sub-payloads the admin API accepts: parallel arrays, one
// element per record, in the order the records were grouped.
type newStatusPayload struct {
	RecordIDs []string `json:"record_ids"`
	Triage    []string `json:"triage_statuses"`
}

type existingStatusPayload struct {
	RecordIDs []string `json:"record_ids"`
	PGCs      []int64  `json:"pgcs"`
	Triage    []string `json:"triage_statuses"`
}

type collidedStatusPayload struct {
	RecordIDs       []string  `json:"record_ids"`
	PossibleMatches [][]int64 `json:"possible_matches"`
	Triage          []string  `json:"triage_statuses"`
}

type statusesPayload struct {
	New      *newStatusPayload      `json:"new,omitempty"`
	Existing *existingStatusPayload `json:"existing,omitempty"`
	Collided *collidedStatusPayload `json:"collided,omitempty"`
}

type setCrossmatchResultsRequest struct {
	Statuses statusesPayload `json:"statuses"`
}

// SetCrossmatchResults groups verdicts by status and makes one batched call
// to set_crossmatch_results. If no sub-payload ends up non-empty, it skips
// the call entirely.
func (c *Client) SetCrossmatchResults(ctx context.Context, verdicts []crossmatch.Verdict) error {
	var newPl newStatusPayload
	var existingPl existingStatusPayload
	var collidedPl collidedStatusPayload

	for _, v := range verdicts {
		switch v.Status {
		case crossmatch.StatusNew:
			newPl.RecordIDs = append(newPl.RecordIDs, v.RecordID)
			newPl.Triage = append(newPl.Triage, string(v.Triage))
		case crossmatch.StatusExisting:
			if v.MatchedPGC == nil {
				continue
			}
			existingPl.RecordIDs = append(existingPl.RecordIDs, v.RecordID)
			existingPl.PGCs = append(existingPl.PGCs, *v.MatchedPGC)
			existingPl.Triage = append(existingPl.Triage, string(v.Triage))
		case crossmatch.StatusColliding:
			if len(v.CollidingPGCs) == 0 {
				continue
			}
			sorted := append([]int64(nil), v.CollidingPGCs...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			collidedPl.RecordIDs = append(collidedPl.RecordIDs, v.RecordID)
			collidedPl.PossibleMatches = append(collidedPl.PossibleMatches, sorted)
			collidedPl.Triage = append(collidedPl.Triage, string(v.Triage))
		}
	}

	req := setCrossmatchResultsRequest{}
	hasPayload := false
	if len(newPl.RecordIDs) > 0 {
		req.Statuses.New = &newPl
		hasPayload = true
	}
	if len(existingPl.RecordIDs) > 0 {
		req.Statuses.Existing = &existingPl
		hasPayload = true
	}
	if len(collidedPl.RecordIDs) > 0 {
		req.Statuses.Collided = &collidedPl
		hasPayload = true
	}
	if !hasPayload {
		return nil
	}

	if err := c.post(ctx, "/v1/set_crossmatch_results", req, nil); err != nil {
		return &crossmatch.WriteError{Detail: "set_crossmatch_results", Err: err}
	}
	return nil
}
