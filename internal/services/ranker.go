package services

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/temcen/crowdlens/pkg/models"
)

// Ranker orders the filtered candidates into the final returned list. For a
// fixed (candidates, predictions, seed) the output ordering must be stable
// and reproducible; offset pagination across repeated calls depends on it.
type Ranker interface {
	Rank(
		userID uuid.UUID,
		contentIDs []uuid.UUID,
		limit int,
		predictions map[uuid.UUID]models.Prediction,
		seed float64,
		sp *models.StartingPoint,
	) []uuid.UUID
}

// ScoreRanker sorts by prediction score descending with content id ascending
// as the tie-break, deduplicating on first occurrence.
type ScoreRanker struct{}

func NewScoreRanker() *ScoreRanker {
	return &ScoreRanker{}
}

func (r *ScoreRanker) Rank(
	userID uuid.UUID,
	contentIDs []uuid.UUID,
	limit int,
	predictions map[uuid.UUID]models.Prediction,
	seed float64,
	sp *models.StartingPoint,
) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(contentIDs))
	unique := make([]uuid.UUID, 0, len(contentIDs))
	for _, contentID := range contentIDs {
		if !seen[contentID] {
			seen[contentID] = true
			unique = append(unique, contentID)
		}
	}

	sort.Slice(unique, func(i, j int) bool {
		si := predictions[unique[i]].Score
		sj := predictions[unique[j]].Score
		if si != sj {
			return si > sj
		}
		return lessUUID(unique[i], unique[j])
	})

	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

func lessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
