package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/crowdlens/pkg/models"
)

func TestPopularityGenerator(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	userID := uuid.New()

	t.Run("ranks by like count and passes pagination through", func(t *testing.T) {
		store := &fakeEngagementSource{counts: []models.ContentEngagementCount{
			{ContentID: seqUUID(1), Count: 40},
			{ContentID: seqUUID(2), Count: 25},
		}}
		gen := NewPopularityGenerator(store, &fakeANNIndex{}, nil, testFunnelConfig(), logger)

		contentIDs, scores, err := gen.GenerateCandidates(
			context.Background(), models.TeamStatic, userID, 100, 10, 42, nil)
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{seqUUID(1), seqUUID(2)}, contentIDs)
		assert.Equal(t, []float64{40, 25}, scores)
		assert.Equal(t, 100, store.countsLimit)
		assert.Equal(t, 10, store.countsOff)
	})

	t.Run("count fetch failure degrades to no candidates", func(t *testing.T) {
		store := &fakeEngagementSource{countsErr: errors.New("connection refused")}
		gen := NewPopularityGenerator(store, &fakeANNIndex{}, nil, testFunnelConfig(), logger)

		contentIDs, scores, err := gen.GenerateCandidates(
			context.Background(), models.TeamStatic, userID, 100, 0, 42, nil)
		require.NoError(t, err)
		assert.Empty(t, contentIDs)
		assert.Empty(t, scores)
	})

	t.Run("anchor content id routes through the ann index", func(t *testing.T) {
		anchor := seqUUID(7)
		ann := &fakeANNIndex{
			contentIDs: []uuid.UUID{seqUUID(8), seqUUID(9)},
			distances:  []float64{0.01, 0.04},
		}
		gen := NewPopularityGenerator(&fakeEngagementSource{}, ann, nil, testFunnelConfig(), logger)

		contentIDs, scores, err := gen.GenerateCandidates(
			context.Background(), models.TeamAlpha, userID, 50, 5, 42,
			&models.StartingPoint{ContentID: &anchor})
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{seqUUID(8), seqUUID(9)}, contentIDs)
		assert.Equal(t, []float64{0.01, 0.04}, scores)
		assert.Equal(t, anchor, ann.anchor)
		assert.Equal(t, 0.9, ann.threshold)
		assert.Equal(t, 50, ann.limit)
		assert.Equal(t, 5, ann.offset)
	})

	t.Run("ann failure degrades to no candidates", func(t *testing.T) {
		anchor := seqUUID(7)
		gen := NewPopularityGenerator(&fakeEngagementSource{},
			&fakeANNIndex{err: errors.New("index unavailable")}, nil, testFunnelConfig(), logger)

		contentIDs, scores, err := gen.GenerateCandidates(
			context.Background(), models.TeamAlpha, userID, 50, 0, 42,
			&models.StartingPoint{ContentID: &anchor})
		require.NoError(t, err)
		assert.Empty(t, contentIDs)
		assert.Empty(t, scores)
	})
}

func TestCollaborativeFilteringGenerator(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	userA := seqUUID(1)
	userB := seqUUID(2)
	now := time.Now()

	records := []models.EngagementRecord{
		{UserID: userA, ContentID: seqUUID(10),
			EngagementType: models.EngagementTypeMillisecondsEngagedWith, EngagementValue: 5, CreatedAt: now},
		{UserID: userB, ContentID: seqUUID(10),
			EngagementType: models.EngagementTypeMillisecondsEngagedWith, EngagementValue: 5, CreatedAt: now},
		{UserID: userB, ContentID: seqUUID(11),
			EngagementType: models.EngagementTypeLike, EngagementValue: 1, CreatedAt: now},
		{UserID: userB, ContentID: seqUUID(12),
			EngagementType: models.EngagementTypeLike, EngagementValue: 1, CreatedAt: now},
		{UserID: userB, ContentID: seqUUID(13),
			EngagementType: models.EngagementTypeLike, EngagementValue: 1, CreatedAt: now},
	}

	t.Run("caps the candidate stream", func(t *testing.T) {
		cfg := testFunnelConfig()
		cfg.MaxCollaborativeCandidates = 2

		engine := NewUserSimilarityEngine(&fakeEngagementSource{records: records}, cfg, logger)
		gen := NewCollaborativeFilteringGenerator(engine, cfg, logger)

		contentIDs, scores, err := gen.GenerateCandidates(
			context.Background(), models.TeamAlpha, userA, 100, 0, 42, nil)
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{seqUUID(11), seqUUID(12)}, contentIDs)
		assert.Equal(t, []float64{1, 1}, scores)
	})

	t.Run("propagates engine build failure", func(t *testing.T) {
		cfg := testFunnelConfig()
		engine := NewUserSimilarityEngine(
			&fakeEngagementSource{recentErr: errors.New("connection refused")}, cfg, logger)
		gen := NewCollaborativeFilteringGenerator(engine, cfg, logger)

		_, _, err := gen.GenerateCandidates(
			context.Background(), models.TeamAlpha, userA, 100, 0, 42, nil)
		assert.Error(t, err)
	})
}

func TestStaticGenerator(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	gen := NewStaticGenerator(logger)
	userID := uuid.New()

	t.Run("returns supplied ids with zero scores", func(t *testing.T) {
		supplied := []uuid.UUID{seqUUID(1), seqUUID(2)}
		contentIDs, scores, err := gen.GenerateCandidates(
			context.Background(), models.TeamAlpha, userID, 100, 0, 42,
			&models.StartingPoint{ContentIDs: supplied})
		require.NoError(t, err)

		assert.Equal(t, supplied, contentIDs)
		assert.Equal(t, []float64{0, 0}, scores)
	})

	t.Run("truncates to limit", func(t *testing.T) {
		supplied := []uuid.UUID{seqUUID(1), seqUUID(2), seqUUID(3)}
		contentIDs, _, err := gen.GenerateCandidates(
			context.Background(), models.TeamAlpha, userID, 2, 0, 42,
			&models.StartingPoint{ContentIDs: supplied})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{seqUUID(1), seqUUID(2)}, contentIDs)
	})

	t.Run("no ids means no candidates", func(t *testing.T) {
		contentIDs, scores, err := gen.GenerateCandidates(
			context.Background(), models.TeamAlpha, userID, 100, 0, 42, nil)
		require.NoError(t, err)
		assert.Empty(t, contentIDs)
		assert.Empty(t, scores)
	})
}
