package models

import (
	"time"

	"github.com/google/uuid"
)

// EngagementType classifies a single engagement row. Likes carry a signed
// engagement value (+1 like, -1 dislike); dwell time is recorded in
// milliseconds.
type EngagementType string

const (
	EngagementTypeLike                    EngagementType = "Like"
	EngagementTypeMillisecondsEngagedWith EngagementType = "MillisecondsEngagedWith"
)

// EngagementRecord is a single immutable interaction sourced from the
// engagement store. This service only ever reads these rows.
type EngagementRecord struct {
	UserID          uuid.UUID      `json:"user_id"`
	ContentID       uuid.UUID      `json:"content_id"`
	EngagementType  EngagementType `json:"engagement_type"`
	EngagementValue float64        `json:"engagement_value"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ContentEngagementCount pairs a content id with an engagement-row count,
// ordered by the query that produced it.
type ContentEngagementCount struct {
	ContentID uuid.UUID `json:"content_id"`
	Count     int64     `json:"count"`
}

// EngagementEvent is the wire form of an engagement row arriving on the
// ingestion topic.
type EngagementEvent struct {
	UserID          uuid.UUID      `json:"user_id" validate:"required"`
	ContentID       uuid.UUID      `json:"content_id" validate:"required"`
	EngagementType  EngagementType `json:"engagement_type" validate:"required,oneof=Like MillisecondsEngagedWith"`
	EngagementValue float64        `json:"engagement_value"`
	Timestamp       time.Time      `json:"timestamp"`
}

// ContentMetadata holds the generation parameters of a content item, used as
// categorical features by the linear threshold filter.
type ContentMetadata struct {
	ContentID         uuid.UUID `json:"content_id"`
	GuidanceScale     float64   `json:"guidance_scale"`
	NumInferenceSteps int       `json:"num_inference_steps"`
	ArtistStyle       string    `json:"artist_style"`
	Source            string    `json:"source"`
}
