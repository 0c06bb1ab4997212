package models

import (
	"time"

	"github.com/google/uuid"
)

// TeamName identifies an experiment cohort. It is carried through every
// funnel stage purely for metric attribution; which stage implementations
// run for a cohort is decided by the controller wiring, never by branching
// on the team inside a stage.
type TeamName string

const (
	TeamStatic  TeamName = "static"
	TeamAlpha   TeamName = "alpha"
	TeamCharlie TeamName = "charlie"
)

// Candidate is a content id with an optional generator score. Candidate
// streams are ordered and may contain duplicate ids until filtering.
type Candidate struct {
	ContentID uuid.UUID `json:"content_id"`
	Score     *float64  `json:"score,omitempty"`
}

// Prediction is the model output for a single candidate.
type Prediction struct {
	Score float64 `json:"score"`
}

// StartingPoint is the request-scoped flag bag selecting optional funnel
// behavior. Unknown keys in the incoming JSON are ignored; the fields here
// are the recognized experiment knobs.
type StartingPoint struct {
	TwoTower      bool       `json:"twoTower"`
	CollabFilter  bool       `json:"collabFilter"`
	YourChoice    bool       `json:"yourChoice"`
	InverseFilter bool       `json:"inverseFilter"`
	ContentID     *uuid.UUID `json:"content_id,omitempty"`
	ContentIDs    []uuid.UUID `json:"content_ids,omitempty"`
}

// MetricFunnelType names the funnel stage a metric row was emitted from.
type MetricFunnelType string

const (
	MetricFunnelGeneration MetricFunnelType = "generation"
	MetricFunnelFiltering  MetricFunnelType = "filtering"
	MetricFunnelPrediction MetricFunnelType = "prediction"
	MetricFunnelRanking    MetricFunnelType = "ranking"
)

// MetricType names what a metric row measures.
type MetricType string

const (
	MetricFilteringNumCandidates MetricType = "filtering_num_candidates"
)

// FunnelMetric is one fire-and-forget metric row. Recording failures are
// isolated by the sink wrapper and never reach the request path.
type FunnelMetric struct {
	RequestID  uuid.UUID              `json:"request_id"`
	Team       TeamName               `json:"team_name"`
	FunnelName string                 `json:"funnel_name"`
	UserID     *uuid.UUID             `json:"user_id,omitempty"`
	ContentID  *uuid.UUID             `json:"content_id,omitempty"`
	FunnelType MetricFunnelType       `json:"metric_funnel_type"`
	MetricType MetricType             `json:"metric_type"`
	Value      float64                `json:"metric_value"`
	Metadata   map[string]interface{} `json:"metric_metadata,omitempty"`
}

// RecommendationRequest is the bound query surface of the controller
// operation.
type RecommendationRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Team   TeamName  `json:"team" validate:"omitempty,oneof=static alpha charlie"`
	Limit  int       `json:"limit" validate:"min=1,max=500"`
	Offset int       `json:"offset" validate:"min=0"`
	Seed   float64   `json:"seed"`
}

type RecommendationResponse struct {
	UserID      uuid.UUID   `json:"user_id"`
	Team        TeamName    `json:"team"`
	ContentIDs  []uuid.UUID `json:"content_ids"`
	GeneratedAt time.Time   `json:"generated_at"`
	CacheHit    bool        `json:"cache_hit"`
}
