package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/pkg/models"
)

// EngagementAggregates summarizes engagement rows for one key (a user or a
// content item): like/dislike counts and the mean dwell time.
type EngagementAggregates struct {
	Likes             float64
	Dislikes          float64
	EngagementTimeAvg float64
}

// FeatureSet is everything the linear threshold filter needs to score a
// candidate set for one user.
type FeatureSet struct {
	Content  map[uuid.UUID]EngagementAggregates
	User     EngagementAggregates
	Metadata map[uuid.UUID]models.ContentMetadata
}

// FeatureCollector fetches engagement aggregates and content metadata for
// the linear threshold filter. Fetch failures surface as errors; the filter
// decides the neutral behavior.
type FeatureCollector struct {
	store          EngagementSource
	logger         *logrus.Logger
	rowsPerContent int
}

func NewFeatureCollector(store EngagementSource, logger *logrus.Logger) *FeatureCollector {
	return &FeatureCollector{
		store:          store,
		logger:         logger,
		rowsPerContent: 3,
	}
}

func (c *FeatureCollector) Collect(
	ctx context.Context,
	userID uuid.UUID,
	contentIDs []uuid.UUID,
) (*FeatureSet, error) {
	engagement, err := c.store.EngagementForContent(ctx, contentIDs, c.rowsPerContent)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content engagement: %w", err)
	}

	metadata, err := c.store.ContentMetadata(ctx, contentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content metadata: %w", err)
	}

	userRows, err := c.store.EngagementForUser(ctx, userID, c.rowsPerContent)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user engagement: %w", err)
	}

	fs := &FeatureSet{
		Content:  make(map[uuid.UUID]EngagementAggregates, len(contentIDs)),
		User:     aggregateEngagement(userRows),
		Metadata: make(map[uuid.UUID]models.ContentMetadata, len(metadata)),
	}

	byContent := make(map[uuid.UUID][]models.EngagementRecord)
	for _, r := range engagement {
		byContent[r.ContentID] = append(byContent[r.ContentID], r)
	}
	for contentID, rows := range byContent {
		fs.Content[contentID] = aggregateEngagement(rows)
	}

	for _, m := range metadata {
		fs.Metadata[m.ContentID] = m
	}

	return fs, nil
}

func aggregateEngagement(rows []models.EngagementRecord) EngagementAggregates {
	var agg EngagementAggregates
	var dwellSum float64
	var dwellCount int

	for _, r := range rows {
		switch r.EngagementType {
		case models.EngagementTypeLike:
			if r.EngagementValue == 1 {
				agg.Likes++
			} else if r.EngagementValue == -1 {
				agg.Dislikes++
			}
		case models.EngagementTypeMillisecondsEngagedWith:
			dwellSum += r.EngagementValue
			dwellCount++
		}
	}

	if dwellCount > 0 {
		agg.EngagementTimeAvg = dwellSum / float64(dwellCount)
	}
	return agg
}
