package services

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"

	"github.com/google/uuid"

	"github.com/temcen/crowdlens/pkg/models"
)

// ErrNoPredictions signals that the predictor could not produce a score
// mapping for a non-empty candidate set. The controller fails the whole
// request on it rather than ranking garbage.
var ErrNoPredictions = errors.New("model produced no predictions")

// ModelPredictor assigns a probability-like score to each surviving
// candidate. Production cohorts substitute a learned scorer behind the same
// contract.
type ModelPredictor interface {
	Predict(
		ctx context.Context,
		contentIDs []uuid.UUID,
		userID uuid.UUID,
		seed float64,
		scores map[uuid.UUID]float64,
	) (map[uuid.UUID]models.Prediction, error)
}

// SeededModel synthesizes deterministic scores from the request seed and the
// content id. Identical inputs always produce identical score maps, which is
// what offset pagination and the ranker determinism guarantee rely on.
type SeededModel struct{}

func NewSeededModel() *SeededModel {
	return &SeededModel{}
}

func (m *SeededModel) Predict(
	ctx context.Context,
	contentIDs []uuid.UUID,
	userID uuid.UUID,
	seed float64,
	scores map[uuid.UUID]float64,
) (map[uuid.UUID]models.Prediction, error) {
	predictions := make(map[uuid.UUID]models.Prediction, len(contentIDs))

	for _, contentID := range contentIDs {
		predictions[contentID] = models.Prediction{Score: seededScore(seed, contentID)}
	}

	if len(contentIDs) > 0 && len(predictions) == 0 {
		return nil, ErrNoPredictions
	}

	return predictions, nil
}

// seededScore hashes (seed, content id) into a uniform value in [0, 1).
func seededScore(seed float64, contentID uuid.UUID) float64 {
	h := fnv.New64a()

	var seedBits [8]byte
	binary.BigEndian.PutUint64(seedBits[:], math.Float64bits(seed))
	h.Write(seedBits[:])
	h.Write(contentID[:])

	return float64(h.Sum64()%1_000_000_000) / 1_000_000_000
}
