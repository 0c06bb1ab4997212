package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/internal/config"
	"github.com/temcen/crowdlens/internal/database"
	"github.com/temcen/crowdlens/pkg/models"
)

// FunnelRunner is the registry surface the HTTP layer talks to.
type FunnelRunner interface {
	GetContentIDs(
		ctx context.Context,
		team models.TeamName,
		requestID uuid.UUID,
		userID uuid.UUID,
		limit, offset int,
		seed float64,
		sp *models.StartingPoint,
	) ([]uuid.UUID, error)
}

// FunnelRegistry maps each experiment cohort onto its wired controller.
type FunnelRegistry struct {
	controllers map[models.TeamName]*FunnelController
}

func (r *FunnelRegistry) GetContentIDs(
	ctx context.Context,
	team models.TeamName,
	requestID uuid.UUID,
	userID uuid.UUID,
	limit, offset int,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, error) {
	controller, ok := r.controllers[team]
	if !ok {
		return nil, fmt.Errorf("unknown team %q", team)
	}
	return controller.GetContentIDs(ctx, requestID, userID, limit, offset, seed, sp)
}

type Services struct {
	Health           *HealthService
	EngagementStore  *EngagementStore
	SimilarityEngine *UserSimilarityEngine
	MetricsSink      MetricsSink
	Funnels          *FunnelRegistry
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	healthService := NewHealthService(db, logger)

	store := NewEngagementStore(db.PG, logger)
	sink := NewPostgresMetricsSink(db.PG, logger)

	engine := NewUserSimilarityEngine(store, &cfg.Funnel, logger)
	ann := NewPgVectorANNIndex(db.PG, logger)

	popularity := NewPopularityGenerator(store, ann, db.Redis, &cfg.Funnel, logger)
	collaborative := NewCollaborativeFilteringGenerator(engine, &cfg.Funnel, logger)
	static := NewStaticGenerator(logger)

	featureCollector := NewFeatureCollector(store, logger)
	randomFilter := NewInstrumentedFilter(NewRandomFilter(cfg.Funnel.RandomFilterKeep), sink, logger)
	linearFilter := NewInstrumentedFilter(
		NewLinearThresholdFilter(featureCollector, cfg.Funnel.LinearThreshold, logger), sink, logger,
	)

	predictor := NewSeededModel()
	ranker := NewScoreRanker()

	staticSeed := 0.25

	// Cohort composition table. Flag-driven slots share the generator pool;
	// cohorts differ in which slots they wire and which filter policy runs.
	controllers := map[models.TeamName]*FunnelController{
		models.TeamStatic: NewFunnelController(FunnelControllerOptions{
			Team:             models.TeamStatic,
			AlwaysGenerators: []CandidateGenerator{popularity},
			Filter:           randomFilter,
			Predictor:        predictor,
			Ranker:           ranker,
			FixedSeed:        &staticSeed,
		}, db.Redis, &cfg.Funnel, logger),

		models.TeamAlpha: NewFunnelController(FunnelControllerOptions{
			Team:           models.TeamAlpha,
			TwoTower:       popularity,
			CollabFilter:   collaborative,
			YourChoice:     static,
			Filter:         linearFilter,
			Predictor:      predictor,
			Ranker:         ranker,
			CandidateLimit: cfg.Funnel.CandidateLimit,
		}, db.Redis, &cfg.Funnel, logger),

		models.TeamCharlie: NewFunnelController(FunnelControllerOptions{
			Team:           models.TeamCharlie,
			TwoTower:       popularity,
			CollabFilter:   collaborative,
			YourChoice:     static,
			Filter:         randomFilter,
			Predictor:      predictor,
			Ranker:         ranker,
			CandidateLimit: cfg.Funnel.CandidateLimit,
		}, db.Redis, &cfg.Funnel, logger),
	}

	// Only cohorts enabled in config are reachable.
	enabled := make(map[models.TeamName]*FunnelController, len(cfg.Funnel.Teams))
	for _, team := range cfg.Funnel.Teams {
		if controller, ok := controllers[models.TeamName(team)]; ok {
			enabled[models.TeamName(team)] = controller
		} else {
			logger.WithField("team", team).Warn("No controller wired for configured team")
		}
	}

	return &Services{
		Health:           healthService,
		EngagementStore:  store,
		SimilarityEngine: engine,
		MetricsSink:      sink,
		Funnels:          &FunnelRegistry{controllers: enabled},
	}, nil
}
