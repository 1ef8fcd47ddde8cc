package service

import (
	"fmt"
	"math"

	"github.com/99minutos/access-control/internal/core/domain"
)

// MatchKind is the class of a match result.
type MatchKind int

const (
	MatchGranted MatchKind = iota
	MatchNoMatch
	MatchEmptyDatabase
	MatchNoFace
)

// MatchResult is the matcher's verdict. Distance is the globally smallest
// distance found; it is meaningful for MatchGranted and MatchNoMatch only.
type MatchResult struct {
	Kind     MatchKind
	UserID   string
	UserName string
	Distance float64
}

// Match finds, across all probes, the single nearest enrolled embedding and
// grants when its distance is within tolerance.
//
// Only the best-matching probe decides: other faces in the same frame are
// not reported. Ties resolve to the lowest snapshot index, which is the
// lowest stored row id.
func Match(probes []domain.Vector, snap *Snapshot, tolerance float64) (MatchResult, error) {
	if snap == nil || snap.Len() == 0 {
		return MatchResult{Kind: MatchEmptyDatabase}, nil
	}
	if len(probes) == 0 {
		return MatchResult{Kind: MatchNoFace}, nil
	}

	best := math.Inf(1)
	bestIdx := -1
	for p, probe := range probes {
		for i, enrolled := range snap.vectors {
			d, err := domain.EuclideanDistance(probe, enrolled)
			if err != nil {
				return MatchResult{}, fmt.Errorf("probe %d: %w", p, err)
			}
			if d < best {
				best = d
				bestIdx = i
			}
		}
	}

	res := MatchResult{
		Kind:     MatchNoMatch,
		Distance: best,
	}
	if best <= tolerance {
		res.Kind = MatchGranted
		res.UserID = snap.userIDs[bestIdx]
		res.UserName = snap.userNames[bestIdx]
	}
	return res, nil
}

// Verdict converts the match result into a pipeline verdict.
func (r MatchResult) Verdict() domain.Verdict {
	switch r.Kind {
	case MatchGranted:
		return domain.Granted(r.UserID, r.UserName, "").WithDistance(r.Distance)
	case MatchNoMatch:
		return domain.Denied(domain.ReasonNoMatch).WithDistance(r.Distance)
	case MatchEmptyDatabase:
		return domain.Denied(domain.ReasonDBEmpty)
	default:
		return domain.Denied(domain.ReasonNoFace)
	}
}
