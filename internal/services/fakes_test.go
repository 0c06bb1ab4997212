package services

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/temcen/crowdlens/internal/config"
	"github.com/temcen/crowdlens/pkg/models"
)

// fakeEngagementSource serves canned rows and counts every snapshot read so
// tests can assert the similarity engine builds exactly once.
type fakeEngagementSource struct {
	records  []models.EngagementRecord
	counts   []models.ContentEngagementCount
	metadata []models.ContentMetadata
	userRows []models.EngagementRecord

	recentErr   error
	countsErr   error
	contentErr  error
	userErr     error
	metadataErr error

	recentCalls int64
	countsLimit int
	countsOff   int
}

func (f *fakeEngagementSource) RecentRecords(ctx context.Context, limit int) ([]models.EngagementRecord, error) {
	atomic.AddInt64(&f.recentCalls, 1)
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeEngagementSource) CountByContent(
	ctx context.Context,
	engagementType models.EngagementType,
	limit, offset int,
) ([]models.ContentEngagementCount, error) {
	f.countsLimit = limit
	f.countsOff = offset
	if f.countsErr != nil {
		return nil, f.countsErr
	}
	return f.counts, nil
}

func (f *fakeEngagementSource) EngagementForContent(
	ctx context.Context,
	contentIDs []uuid.UUID,
	rowsPerContent int,
) ([]models.EngagementRecord, error) {
	if f.contentErr != nil {
		return nil, f.contentErr
	}
	return f.records, nil
}

func (f *fakeEngagementSource) EngagementForUser(
	ctx context.Context,
	userID uuid.UUID,
	rowsPerContent int,
) ([]models.EngagementRecord, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.userRows, nil
}

func (f *fakeEngagementSource) ContentMetadata(
	ctx context.Context,
	contentIDs []uuid.UUID,
) ([]models.ContentMetadata, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return f.metadata, nil
}

type fakeANNIndex struct {
	contentIDs []uuid.UUID
	distances  []float64
	err        error

	anchor    uuid.UUID
	threshold float64
	limit     int
	offset    int
}

func (f *fakeANNIndex) Query(
	ctx context.Context,
	anchorID uuid.UUID,
	similarityThreshold float64,
	limit, offset int,
	returnDistances bool,
) ([]uuid.UUID, []float64, error) {
	f.anchor = anchorID
	f.threshold = similarityThreshold
	f.limit = limit
	f.offset = offset
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.contentIDs, f.distances, nil
}

// fakeMetricsSink captures recorded metrics and can be made to fail.
type fakeMetricsSink struct {
	recorded []*models.FunnelMetric
	err      error
}

func (f *fakeMetricsSink) Record(ctx context.Context, metric *models.FunnelMetric) error {
	f.recorded = append(f.recorded, metric)
	return f.err
}

// fakeFilter returns a fixed result or error regardless of input and keeps
// the last input it saw.
type fakeFilter struct {
	result []uuid.UUID
	err    error

	lastInput []uuid.UUID
}

func (f *fakeFilter) Name() string { return "fake" }

func (f *fakeFilter) FilterCandidates(
	ctx context.Context,
	userID uuid.UUID,
	contentIDs []uuid.UUID,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, error) {
	f.lastInput = contentIDs
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return contentIDs, nil
}

// fakeGenerator returns fixed ids and captures the seed it was handed.
type fakeGenerator struct {
	name       string
	contentIDs []uuid.UUID
	scores     []float64
	err        error

	lastSeed   float64
	lastLimit  int
	lastOffset int
	calls      int
}

func (f *fakeGenerator) Name() string { return f.name }

func (f *fakeGenerator) GenerateCandidates(
	ctx context.Context,
	team models.TeamName,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, []float64, error) {
	f.lastSeed = seed
	f.lastLimit = limit
	f.lastOffset = offset
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.contentIDs, f.scores, nil
}

// seqUUID builds a uuid whose last byte is n, so byte order equals n order.
func seqUUID(n byte) uuid.UUID {
	var id uuid.UUID
	id[15] = n
	return id
}

func testFunnelConfig() *config.FunnelConfig {
	return &config.FunnelConfig{
		Teams:                      []string{"static", "alpha", "charlie"},
		TopContent:                 251,
		SimilarUsers:               20,
		MaxEngagementRows:          100000,
		CandidateLimit:             500,
		RecommendationLength:       1000,
		MaxCollaborativeCandidates: 725,
		ANNSimilarityThreshold:     0.9,
		RandomFilterKeep:           0.1,
		LinearThreshold:            0.5,
		SeedScale:                  1000000,
		ResultsTTL:                 0,
	}
}
