package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ANNIndex is the query contract of the approximate-nearest-neighbor index.
// Results are ordered by distance ascending with content id ascending as the
// secondary key, so offset/limit paginate deterministically.
type ANNIndex interface {
	Query(
		ctx context.Context,
		anchorID uuid.UUID,
		similarityThreshold float64,
		limit, offset int,
		returnDistances bool,
	) ([]uuid.UUID, []float64, error)
}

// PgVectorANNIndex answers ANN queries with a pgvector cosine-distance scan
// over the content embedding column.
type PgVectorANNIndex struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewPgVectorANNIndex(db DatabaseQuerier, logger *logrus.Logger) *PgVectorANNIndex {
	return &PgVectorANNIndex{
		db:     db,
		logger: logger,
	}
}

func (idx *PgVectorANNIndex) Query(
	ctx context.Context,
	anchorID uuid.UUID,
	similarityThreshold float64,
	limit, offset int,
	returnDistances bool,
) ([]uuid.UUID, []float64, error) {
	query := `
		SELECT ci.id, ci.embedding <=> anchor.embedding AS distance
		FROM content_items ci,
			(SELECT embedding FROM content_items WHERE id = $1) anchor
		WHERE ci.id != $1
			AND 1 - (ci.embedding <=> anchor.embedding) >= $2
		ORDER BY distance ASC, ci.id ASC
		LIMIT $3 OFFSET $4`

	rows, err := idx.db.Query(ctx, query, anchorID, similarityThreshold, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("ann query failed: %w", err)
	}
	defer rows.Close()

	var contentIDs []uuid.UUID
	var distances []float64

	for rows.Next() {
		var contentID uuid.UUID
		var distance float64
		if err := rows.Scan(&contentID, &distance); err != nil {
			idx.logger.WithError(err).Error("Failed to scan ann result")
			continue
		}
		contentIDs = append(contentIDs, contentID)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("ann query failed: %w", err)
	}

	if !returnDistances {
		return contentIDs, nil, nil
	}
	return contentIDs, distances, nil
}
