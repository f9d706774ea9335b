package election

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// AssignPositions is the ranking engine: eligible candidates sorted by tally
// descending, ties broken by _id ascending (registration order), titles
// handed out by rank. Candidates beyond the slate get their position cleared.
// The operation is idempotent and only writes assignments that changed.
func (s *Service) AssignPositions(ctx context.Context) ([]Assignment, error) {
	candidates, err := s.store.EligibleCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Assignment{}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].VoteCount != candidates[j].VoteCount {
			return candidates[i].VoteCount > candidates[j].VoteCount
		}
		return candidates[i].ID.Hex() < candidates[j].ID.Hex()
	})

	assignments := make([]Assignment, 0, len(s.titles))
	for rank, candidate := range candidates {
		title := ""
		if rank < len(s.titles) {
			title = s.titles[rank]
		}

		if candidate.AssignedPosition != title {
			if err := s.store.SetAssignedPosition(ctx, candidate.ID, title); err != nil {
				return nil, err
			}
			s.logger.Info("Position assigned",
				zap.String("candidate_id", candidate.ID.Hex()),
				zap.String("position", title))
		}

		if title != "" {
			assignments = append(assignments, Assignment{
				Position:    title,
				CandidateID: candidate.ID.Hex(),
				Name:        candidate.Name,
				Votes:       candidate.VoteCount,
			})
		}
	}
	return assignments, nil
}
