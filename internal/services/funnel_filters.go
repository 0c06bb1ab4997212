package services

import (
	"context"
	"math/rand"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/pkg/models"
)

// CandidateFilter reduces a candidate set according to one policy. Filters
// may drop or keep ids but never introduce duplicates that were not already
// present in the input.
type CandidateFilter interface {
	Name() string
	FilterCandidates(
		ctx context.Context,
		userID uuid.UUID,
		contentIDs []uuid.UUID,
		seed float64,
		sp *models.StartingPoint,
	) ([]uuid.UUID, error)
}

// RandomFilter keeps roughly the configured fraction of candidates, sampled
// deterministically from the request seed.
type RandomFilter struct {
	keep float64
}

func NewRandomFilter(keep float64) *RandomFilter {
	return &RandomFilter{keep: keep}
}

func (f *RandomFilter) Name() string {
	return "random"
}

func (f *RandomFilter) FilterCandidates(
	ctx context.Context,
	userID uuid.UUID,
	contentIDs []uuid.UUID,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, error) {
	rng := rand.New(rand.NewSource(int64(seed)))

	var kept []uuid.UUID
	for _, contentID := range contentIDs {
		if rng.Float64() < f.keep {
			kept = append(kept, contentID)
		}
	}
	return kept, nil
}

// OneHotCoefficients maps a categorical column onto hand-set linear model
// coefficients. Coefficients has one more entry than Categories; the last
// one applies to any value outside the known set ("other").
type OneHotCoefficients struct {
	Categories   []string
	Coefficients []float64
}

func (o OneHotCoefficients) coefficientFor(value string) float64 {
	for i, category := range o.Categories {
		if category == value {
			return o.Coefficients[i]
		}
	}
	return o.Coefficients[len(o.Coefficients)-1]
}

// LinearThresholdFilter scores each candidate with a hand-tuned linear model
// over one-hot categorical features and engagement aggregates; a candidate
// survives iff its score meets the threshold.
//
// When feature data cannot be fetched the filter passes the candidate set
// through unchanged: a missing feature source degrades the stage to a no-op
// rather than silently emptying the funnel.
type LinearThresholdFilter struct {
	collector *FeatureCollector
	threshold float64
	logger    *logrus.Logger

	artistStyles      OneHotCoefficients
	sources           OneHotCoefficients
	numInferenceSteps OneHotCoefficients
	engagementCoeffs  map[string]float64
}

func NewLinearThresholdFilter(
	collector *FeatureCollector,
	threshold float64,
	logger *logrus.Logger,
) *LinearThresholdFilter {
	return &LinearThresholdFilter{
		collector: collector,
		threshold: threshold,
		logger:    logger,
		artistStyles: OneHotCoefficients{
			Categories:   []string{"van_gogh", "jean-michel_basquiat", "detailed_portrait", "kerry_james_marshall"},
			Coefficients: []float64{0.6, 0.4, 0.3, 0.35, 0.1},
		},
		sources: OneHotCoefficients{
			Categories:   []string{"human_prompts", "r/EarthPorn", "r/Showerthoughts", "r/scifi"},
			Coefficients: []float64{0.5, 0.3, 0.2, 0.25, 0.05},
		},
		numInferenceSteps: OneHotCoefficients{
			Categories:   []string{"20", "50", "75", "100"},
			Coefficients: []float64{0.1, 0.25, 0.3, 0.2, 0.0},
		},
		engagementCoeffs: map[string]float64{
			"content_likes":               0.02,
			"content_dislikes":            -0.05,
			"content_engagement_time_avg": 0.00001,
			"user_likes":                  0.01,
			"user_dislikes":               -0.01,
			"user_engagement_time_avg":    0.000005,
		},
	}
}

func (f *LinearThresholdFilter) Name() string {
	return "linear_threshold"
}

func (f *LinearThresholdFilter) FilterCandidates(
	ctx context.Context,
	userID uuid.UUID,
	contentIDs []uuid.UUID,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}

	features, err := f.collector.Collect(ctx, userID, contentIDs)
	if err != nil {
		f.logger.WithError(err).WithField("user_id", userID).
			Warn("Feature fetch failed, passing candidates through")
		return contentIDs, nil
	}

	var kept []uuid.UUID
	for _, contentID := range contentIDs {
		if f.score(contentID, features) >= f.threshold {
			kept = append(kept, contentID)
		}
	}
	return kept, nil
}

func (f *LinearThresholdFilter) score(contentID uuid.UUID, features *FeatureSet) float64 {
	content := features.Content[contentID]

	score := content.Likes*f.engagementCoeffs["content_likes"] +
		content.Dislikes*f.engagementCoeffs["content_dislikes"] +
		content.EngagementTimeAvg*f.engagementCoeffs["content_engagement_time_avg"] +
		features.User.Likes*f.engagementCoeffs["user_likes"] +
		features.User.Dislikes*f.engagementCoeffs["user_dislikes"] +
		features.User.EngagementTimeAvg*f.engagementCoeffs["user_engagement_time_avg"]

	if metadata, ok := features.Metadata[contentID]; ok {
		score += f.artistStyles.coefficientFor(metadata.ArtistStyle)
		score += f.sources.coefficientFor(metadata.Source)
		score += f.numInferenceSteps.coefficientFor(strconv.Itoa(metadata.NumInferenceSteps))
	}
	return score
}

// InstrumentedFilter wraps a filter with the cross-cutting metric emission:
// after every invocation it records the resulting candidate count (-1 on
// filter failure). Metric recording is best-effort; a sink failure is logged
// and never reaches the caller or discards the filtered result.
type InstrumentedFilter struct {
	filter CandidateFilter
	sink   MetricsSink
	logger *logrus.Logger
}

func NewInstrumentedFilter(filter CandidateFilter, sink MetricsSink, logger *logrus.Logger) *InstrumentedFilter {
	return &InstrumentedFilter{
		filter: filter,
		sink:   sink,
		logger: logger,
	}
}

func (f *InstrumentedFilter) Name() string {
	return f.filter.Name()
}

func (f *InstrumentedFilter) FilterCandidates(
	ctx context.Context,
	team models.TeamName,
	requestID uuid.UUID,
	userID uuid.UUID,
	contentIDs []uuid.UUID,
	seed float64,
	sp *models.StartingPoint,
) ([]uuid.UUID, error) {
	filtered, err := f.filter.FilterCandidates(ctx, userID, contentIDs, seed, sp)

	value := float64(len(filtered))
	if err != nil {
		value = -1
	}

	var userRef *uuid.UUID
	if userID != uuid.Nil {
		userRef = &userID
	}

	metric := &models.FunnelMetric{
		RequestID:  requestID,
		Team:       team,
		FunnelName: f.filter.Name(),
		UserID:     userRef,
		FunnelType: models.MetricFunnelFiltering,
		MetricType: models.MetricFilteringNumCandidates,
		Value:      value,
		Metadata: map[string]interface{}{
			"seed":           seed,
			"starting_point": sp,
		},
	}

	if recordErr := f.sink.Record(ctx, metric); recordErr != nil {
		f.logger.WithError(recordErr).WithFields(logrus.Fields{
			"team":    team,
			"filter":  f.filter.Name(),
			"user_id": userID,
		}).Error("Failed to record filter metric")
	}

	return filtered, err
}
