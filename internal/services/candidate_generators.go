package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/internal/config"
	"github.com/temcen/crowdlens/pkg/models"
)

// CandidateGenerator produces an ordered (content id, score) stream for one
// strategy. Streams from multiple generators are concatenated by the
// controller without deduplication; that is the filter stage's job if it
// wants it.
type CandidateGenerator interface {
	Name() string
	GenerateCandidates(
		ctx context.Context,
		team models.TeamName,
		userID uuid.UUID,
		limit, offset int,
		seed float64,
		sp *models.StartingPoint,
	) ([]uuid.UUID, []float64, error)
}

// PopularityGenerator ranks content by Like count. When the request carries
// an anchor content id it delegates to the ANN index instead and the scores
// become distances. Like-count pages are user-independent, so they go through
// a short-lived Redis cache.
type PopularityGenerator struct {
	store  EngagementSource
	ann    ANNIndex
	redis  *redis.Client
	config *config.FunnelConfig
	logger *logrus.Logger
}

func NewPopularityGenerator(
	store EngagementSource,
	ann ANNIndex,
	redisClient *redis.Client,
	cfg *config.FunnelConfig,
	logger *logrus.Logger,
) *PopularityGenerator {
	return &PopularityGenerator{
		store:  store,
		ann:    ann,
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

func (g *PopularityGenerator) Name() string {
	return "popularity"
}

func (g *PopularityGenerator) GenerateCandidates(
	ctx context.Context,
	team models.TeamName,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, []float64, error) {
	if sp == nil || sp.ContentID == nil {
		cacheKey := fmt.Sprintf("popularity:%d:%d", limit, offset)
		if ids, scores, ok := g.cachedPage(ctx, cacheKey); ok {
			return ids, scores, nil
		}

		counts, err := g.store.CountByContent(ctx, models.EngagementTypeLike, limit, offset)
		if err != nil {
			// Missing popularity data degrades this stage, not the request.
			g.logger.WithError(err).WithField("team", team).Error("Popularity count fetch failed")
			return nil, nil, nil
		}

		contentIDs := make([]uuid.UUID, len(counts))
		scores := make([]float64, len(counts))
		for i, c := range counts {
			contentIDs[i] = c.ContentID
			scores[i] = float64(c.Count)
		}
		g.cachePage(ctx, cacheKey, contentIDs, scores)
		return contentIDs, scores, nil
	}

	contentIDs, distances, err := g.ann.Query(
		ctx, *sp.ContentID, g.config.ANNSimilarityThreshold, limit, offset, true,
	)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"team":    team,
			"anchor":  sp.ContentID,
			"user_id": userID,
		}).Error("ANN lookup failed")
		return nil, nil, nil
	}

	return contentIDs, distances, nil
}

type popularityPage struct {
	ContentIDs []uuid.UUID `json:"content_ids"`
	Scores     []float64   `json:"scores"`
}

func (g *PopularityGenerator) cachedPage(ctx context.Context, key string) ([]uuid.UUID, []float64, bool) {
	if g.redis == nil {
		return nil, nil, false
	}

	cached := g.redis.Get(ctx, key).Val()
	if cached == "" {
		return nil, nil, false
	}

	var page popularityPage
	if err := json.Unmarshal([]byte(cached), &page); err != nil {
		return nil, nil, false
	}
	return page.ContentIDs, page.Scores, true
}

func (g *PopularityGenerator) cachePage(ctx context.Context, key string, contentIDs []uuid.UUID, scores []float64) {
	if g.redis == nil {
		return
	}

	data, err := json.Marshal(popularityPage{ContentIDs: contentIDs, Scores: scores})
	if err != nil {
		return
	}
	if err := g.redis.Set(ctx, key, data, g.config.ResultsTTL).Err(); err != nil {
		g.logger.WithError(err).Debug("Failed to cache popularity page")
	}
}

// CollaborativeFilteringGenerator surfaces content engaged by the user's
// nearest neighbors, scored by distinct-neighbor vote counts.
type CollaborativeFilteringGenerator struct {
	engine *UserSimilarityEngine
	config *config.FunnelConfig
	logger *logrus.Logger
}

func NewCollaborativeFilteringGenerator(
	engine *UserSimilarityEngine,
	cfg *config.FunnelConfig,
	logger *logrus.Logger,
) *CollaborativeFilteringGenerator {
	return &CollaborativeFilteringGenerator{
		engine: engine,
		config: cfg,
		logger: logger,
	}
}

func (g *CollaborativeFilteringGenerator) Name() string {
	return "collaborative_filtering"
}

func (g *CollaborativeFilteringGenerator) GenerateCandidates(
	ctx context.Context,
	team models.TeamName,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, []float64, error) {
	contentIDs, scores, err := g.engine.Recommend(ctx, userID, g.config.RecommendationLength)
	if err != nil {
		return nil, nil, fmt.Errorf("collaborative recommendation failed: %w", err)
	}

	max := g.config.MaxCollaborativeCandidates
	if len(contentIDs) > max {
		contentIDs = contentIDs[:max]
		scores = scores[:max]
	}

	return contentIDs, scores, nil
}

// StaticGenerator returns externally supplied content ids with zero scores.
// It is the deferred experimental slot cohorts can point at hand-picked
// content.
type StaticGenerator struct {
	logger *logrus.Logger
}

func NewStaticGenerator(logger *logrus.Logger) *StaticGenerator {
	return &StaticGenerator{logger: logger}
}

func (g *StaticGenerator) Name() string {
	return "static"
}

func (g *StaticGenerator) GenerateCandidates(
	ctx context.Context,
	team models.TeamName,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, []float64, error) {
	if sp == nil || len(sp.ContentIDs) == 0 {
		return nil, nil, nil
	}

	contentIDs := sp.ContentIDs
	if len(contentIDs) > limit {
		contentIDs = contentIDs[:limit]
	}

	out := make([]uuid.UUID, len(contentIDs))
	copy(out, contentIDs)
	return out, make([]float64, len(out)), nil
}
