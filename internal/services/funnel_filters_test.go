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

func TestRandomFilter(t *testing.T) {
	userID := uuid.New()
	contentIDs := make([]uuid.UUID, 100)
	for i := range contentIDs {
		contentIDs[i] = uuid.New()
	}

	t.Run("same seed keeps the same subset", func(t *testing.T) {
		filter := NewRandomFilter(0.5)

		first, err := filter.FilterCandidates(context.Background(), userID, contentIDs, 123456, nil)
		require.NoError(t, err)
		second, err := filter.FilterCandidates(context.Background(), userID, contentIDs, 123456, nil)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Less(t, len(first), len(contentIDs))
		assert.NotEmpty(t, first)
	})

	t.Run("keep fraction one passes everything", func(t *testing.T) {
		filter := NewRandomFilter(1.0)
		kept, err := filter.FilterCandidates(context.Background(), userID, contentIDs, 42, nil)
		require.NoError(t, err)
		assert.Equal(t, contentIDs, kept)
	})

	t.Run("keep fraction zero drops everything", func(t *testing.T) {
		filter := NewRandomFilter(0)
		kept, err := filter.FilterCandidates(context.Background(), userID, contentIDs, 42, nil)
		require.NoError(t, err)
		assert.Empty(t, kept)
	})
}

func TestLinearThresholdFilter(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	userID := uuid.New()

	strong := seqUUID(1)
	weak := seqUUID(2)

	t.Run("keeps candidates meeting the threshold", func(t *testing.T) {
		store := &fakeEngagementSource{
			records: []models.EngagementRecord{
				{UserID: uuid.New(), ContentID: strong,
					EngagementType: models.EngagementTypeLike, EngagementValue: 1, CreatedAt: time.Now()},
			},
			metadata: []models.ContentMetadata{
				{ContentID: strong, ArtistStyle: "van_gogh", Source: "human_prompts", NumInferenceSteps: 20},
			},
		}
		filter := NewLinearThresholdFilter(NewFeatureCollector(store, logger), 0.5, logger)

		kept, err := filter.FilterCandidates(
			context.Background(), userID, []uuid.UUID{strong, weak}, 42, nil)
		require.NoError(t, err)

		// strong carries favorable metadata and a like; weak has nothing.
		assert.Equal(t, []uuid.UUID{strong}, kept)
	})

	t.Run("passes through when feature data is unavailable", func(t *testing.T) {
		store := &fakeEngagementSource{contentErr: errors.New("connection refused")}
		filter := NewLinearThresholdFilter(NewFeatureCollector(store, logger), 0.5, logger)

		contentIDs := []uuid.UUID{strong, weak}
		kept, err := filter.FilterCandidates(context.Background(), userID, contentIDs, 42, nil)
		require.NoError(t, err)
		assert.Equal(t, contentIDs, kept)
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		filter := NewLinearThresholdFilter(
			NewFeatureCollector(&fakeEngagementSource{}, logger), 0.5, logger)
		kept, err := filter.FilterCandidates(context.Background(), userID, nil, 42, nil)
		require.NoError(t, err)
		assert.Empty(t, kept)
	})
}

func TestInstrumentedFilter(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	userID := uuid.New()
	requestID := uuid.New()
	contentIDs := []uuid.UUID{seqUUID(1), seqUUID(2), seqUUID(3)}

	t.Run("records the surviving candidate count", func(t *testing.T) {
		sink := &fakeMetricsSink{}
		filter := NewInstrumentedFilter(&fakeFilter{result: contentIDs[:1]}, sink, logger)

		filtered, err := filter.FilterCandidates(
			context.Background(), models.TeamAlpha, requestID, userID, contentIDs, 42, nil)
		require.NoError(t, err)
		assert.Equal(t, contentIDs[:1], filtered)

		require.Len(t, sink.recorded, 1)
		metric := sink.recorded[0]
		assert.Equal(t, requestID, metric.RequestID)
		assert.Equal(t, models.TeamAlpha, metric.Team)
		assert.Equal(t, "fake", metric.FunnelName)
		assert.Equal(t, models.MetricFunnelFiltering, metric.FunnelType)
		assert.Equal(t, models.MetricFilteringNumCandidates, metric.MetricType)
		assert.Equal(t, 1.0, metric.Value)
	})

	t.Run("records minus one when the filter fails", func(t *testing.T) {
		sink := &fakeMetricsSink{}
		filter := NewInstrumentedFilter(&fakeFilter{err: errors.New("boom")}, sink, logger)

		_, err := filter.FilterCandidates(
			context.Background(), models.TeamAlpha, requestID, userID, contentIDs, 42, nil)
		require.Error(t, err)

		require.Len(t, sink.recorded, 1)
		assert.Equal(t, -1.0, sink.recorded[0].Value)
	})

	t.Run("sink failure never reaches the caller", func(t *testing.T) {
		sink := &fakeMetricsSink{err: errors.New("metrics store down")}
		filter := NewInstrumentedFilter(&fakeFilter{}, sink, logger)

		filtered, err := filter.FilterCandidates(
			context.Background(), models.TeamAlpha, requestID, userID, contentIDs, 42, nil)
		require.NoError(t, err)
		assert.Equal(t, contentIDs, filtered)
	})
}
