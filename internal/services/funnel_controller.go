package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/internal/config"
	"github.com/temcen/crowdlens/pkg/models"
)

// FunnelController runs one cohort's recommendation funnel in a single pass:
// generate (concatenated) -> filter -> predict -> rank. Which generator
// slots participate is decided by the request's starting-point flags; the
// team name flows through to every stage for metric attribution only.
type FunnelController struct {
	team models.TeamName

	// Generator slots. Always-on generators run regardless of flags; the
	// named slots activate on their starting-point flag. A nil slot means
	// the cohort does not wire that experiment.
	alwaysGenerators []CandidateGenerator
	twoTower         CandidateGenerator
	collabFilter     CandidateGenerator
	yourChoice       CandidateGenerator

	filter    *InstrumentedFilter
	predictor ModelPredictor
	ranker    Ranker

	// candidateLimit of 0 means "derive from the request": limit * 100,
	// covering the filter keep-fraction and the ranked top slice.
	candidateLimit int
	// fixedSeed pins the seed for cohorts that must ignore the caller's
	// seed entirely.
	fixedSeed *float64

	redis  *redis.Client
	config *config.FunnelConfig
	logger *logrus.Logger
}

type FunnelControllerOptions struct {
	Team             models.TeamName
	AlwaysGenerators []CandidateGenerator
	TwoTower         CandidateGenerator
	CollabFilter     CandidateGenerator
	YourChoice       CandidateGenerator
	Filter           *InstrumentedFilter
	Predictor        ModelPredictor
	Ranker           Ranker
	CandidateLimit   int
	FixedSeed        *float64
}

func NewFunnelController(
	opts FunnelControllerOptions,
	redisClient *redis.Client,
	cfg *config.FunnelConfig,
	logger *logrus.Logger,
) *FunnelController {
	return &FunnelController{
		team:             opts.Team,
		alwaysGenerators: opts.AlwaysGenerators,
		twoTower:         opts.TwoTower,
		collabFilter:     opts.CollabFilter,
		yourChoice:       opts.YourChoice,
		filter:           opts.Filter,
		predictor:        opts.Predictor,
		ranker:           opts.Ranker,
		candidateLimit:   opts.CandidateLimit,
		fixedSeed:        opts.FixedSeed,
		redis:            redisClient,
		config:           cfg,
		logger:           logger,
	}
}

// GetContentIDs is the sole externally visible operation of the funnel. The
// result may be shorter than limit; that is a valid response, not an error.
func (c *FunnelController) GetContentIDs(
	ctx context.Context,
	requestID uuid.UUID,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, error) {
	start := time.Now()

	if c.fixedSeed != nil {
		seed = *c.fixedSeed
	}
	// Fractional seeds rescale to the row-count domain exactly once, here
	// at the controller boundary. A seed already > 1 passes through.
	if seed <= 1 {
		seed *= c.config.SeedScale
	}

	if cached, err := c.getCachedResult(ctx, userID, limit, offset, seed, sp); err == nil && cached != nil {
		c.logger.WithFields(logrus.Fields{
			"team":    c.team,
			"user_id": userID,
		}).Debug("Funnel cache hit")
		return cached, nil
	}

	candidateLimit := c.candidateLimit
	if candidateLimit == 0 {
		candidateLimit = limit * 100
	}

	candidates, generatorScores := c.generate(ctx, userID, candidateLimit, offset, seed, sp)

	filtered, err := c.filter.FilterCandidates(ctx, c.team, requestID, userID, candidates, seed, sp)
	if err != nil {
		return nil, fmt.Errorf("filter stage failed: %w", err)
	}

	if sp != nil && sp.InverseFilter {
		filtered = complementOf(candidates, filtered)
	}

	predictions, err := c.predictor.Predict(ctx, filtered, userID, seed, generatorScores)
	if err != nil {
		return nil, fmt.Errorf("prediction stage failed: %w", err)
	}

	ranked := c.ranker.Rank(userID, filtered, limit, predictions, seed, sp)

	if err := c.cacheResult(ctx, userID, limit, offset, seed, sp, ranked); err != nil {
		c.logger.WithError(err).Debug("Failed to cache funnel result")
	}

	c.logger.WithFields(logrus.Fields{
		"team":       c.team,
		"user_id":    userID,
		"candidates": len(candidates),
		"filtered":   len(filtered),
		"returned":   len(ranked),
		"latency":    time.Since(start),
	}).Info("Funnel completed")

	return ranked, nil
}

// generate invokes the active generators in slot order and concatenates
// their streams. Duplicate ids across generators are kept; deduplication is
// the filter's and ranker's concern. A failing generator degrades to an
// empty contribution.
func (c *FunnelController) generate(
	ctx context.Context,
	userID uuid.UUID,
	candidateLimit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, map[uuid.UUID]float64) {
	generators := make([]CandidateGenerator, 0, 4)
	generators = append(generators, c.alwaysGenerators...)
	if sp != nil {
		if sp.TwoTower && c.twoTower != nil {
			generators = append(generators, c.twoTower)
		}
		if sp.CollabFilter && c.collabFilter != nil {
			generators = append(generators, c.collabFilter)
		}
		if sp.YourChoice && c.yourChoice != nil {
			generators = append(generators, c.yourChoice)
		}
	}

	var candidates []uuid.UUID
	scores := make(map[uuid.UUID]float64)

	for _, gen := range generators {
		ids, genScores, err := gen.GenerateCandidates(ctx, c.team, userID, candidateLimit, offset, seed, sp)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"team":      c.team,
				"generator": gen.Name(),
				"user_id":   userID,
			}).Error("Candidate generator failed")
			continue
		}

		for i, contentID := range ids {
			candidates = append(candidates, contentID)
			if _, ok := scores[contentID]; !ok && i < len(genScores) {
				scores[contentID] = genScores[i]
			}
		}
	}

	return candidates, scores
}

// complementOf returns the candidates not present in filtered, preserving
// the original candidate order and deduplicating on first occurrence.
func complementOf(candidates, filtered []uuid.UUID) []uuid.UUID {
	dropped := make(map[uuid.UUID]bool, len(filtered))
	for _, contentID := range filtered {
		dropped[contentID] = true
	}

	var complement []uuid.UUID
	for _, contentID := range candidates {
		if !dropped[contentID] {
			dropped[contentID] = true
			complement = append(complement, contentID)
		}
	}
	return complement
}

// Cache operations. The seed is part of the key, so results stay
// request-scoped; the seed itself is never cached.

func (c *FunnelController) getCachedResult(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, error) {
	if c.redis == nil {
		return nil, fmt.Errorf("cache not available")
	}

	cached := c.redis.Get(ctx, c.buildCacheKey(userID, limit, offset, seed, sp)).Val()
	if cached == "" {
		return nil, fmt.Errorf("cache miss")
	}

	var contentIDs []uuid.UUID
	if err := json.Unmarshal([]byte(cached), &contentIDs); err != nil {
		return nil, err
	}
	return contentIDs, nil
}

func (c *FunnelController) cacheResult(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
	contentIDs []uuid.UUID,
) error {
	if c.redis == nil {
		return nil
	}

	data, err := json.Marshal(contentIDs)
	if err != nil {
		return err
	}

	return c.redis.Set(ctx, c.buildCacheKey(userID, limit, offset, seed, sp), data, c.config.ResultsTTL).Err()
}

func (c *FunnelController) buildCacheKey(
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) string {
	flags, _ := json.Marshal(sp)
	return fmt.Sprintf("funnel:%s:%s:%d:%d:%g:%s", c.team, userID, limit, offset, seed, flags)
}
