package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// EngagementSource is the read surface of the engagement store consumed by
// the similarity engine, the candidate generators and the feature collector.
// Single-query snapshot semantics; no transactions.
type EngagementSource interface {
	RecentRecords(ctx context.Context, limit int) ([]models.EngagementRecord, error)
	CountByContent(ctx context.Context, engagementType models.EngagementType, limit, offset int) ([]models.ContentEngagementCount, error)
	EngagementForContent(ctx context.Context, contentIDs []uuid.UUID, rowsPerContent int) ([]models.EngagementRecord, error)
	EngagementForUser(ctx context.Context, userID uuid.UUID, rowsPerContent int) ([]models.EngagementRecord, error)
	ContentMetadata(ctx context.Context, contentIDs []uuid.UUID) ([]models.ContentMetadata, error)
}

// EngagementStore queries interaction rows from PostgreSQL.
type EngagementStore struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewEngagementStore(db DatabaseQuerier, logger *logrus.Logger) *EngagementStore {
	return &EngagementStore{
		db:     db,
		logger: logger,
	}
}

// RecentRecords returns up to limit engagement rows, newest first. The
// similarity engine builds its interaction matrix from this snapshot.
func (s *EngagementStore) RecentRecords(ctx context.Context, limit int) ([]models.EngagementRecord, error) {
	query := `
		SELECT user_id, content_id, engagement_type, engagement_value, created_at
		FROM engagements
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent records query failed: %w", err)
	}
	defer rows.Close()

	return scanEngagementRecords(rows)
}

// CountByContent returns (content_id, count) pairs for the given engagement
// type, ordered by count descending with content_id ascending as the
// deterministic secondary key, paginated by limit/offset.
func (s *EngagementStore) CountByContent(
	ctx context.Context,
	engagementType models.EngagementType,
	limit, offset int,
) ([]models.ContentEngagementCount, error) {
	query := `
		SELECT content_id, COUNT(*)
		FROM engagements
		WHERE engagement_type = $1
		GROUP BY content_id
		ORDER BY COUNT(*) DESC, content_id ASC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, string(engagementType), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("count by content query failed: %w", err)
	}
	defer rows.Close()

	var counts []models.ContentEngagementCount
	for rows.Next() {
		var c models.ContentEngagementCount
		if err := rows.Scan(&c.ContentID, &c.Count); err != nil {
			s.logger.WithError(err).Error("Failed to scan content engagement count")
			continue
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

// EngagementForContent returns at most rowsPerContent rows per content id,
// partitioned deterministically by user_id order.
func (s *EngagementStore) EngagementForContent(
	ctx context.Context,
	contentIDs []uuid.UUID,
	rowsPerContent int,
) ([]models.EngagementRecord, error) {
	query := `
		SELECT user_id, content_id, engagement_type, engagement_value, created_at
		FROM (
			SELECT user_id, content_id, engagement_type, engagement_value, created_at,
				ROW_NUMBER() OVER (PARTITION BY content_id ORDER BY user_id) AS row_num
			FROM engagements
			WHERE content_id = ANY($1)
		) ranked
		WHERE row_num <= $2`

	rows, err := s.db.Query(ctx, query, contentIDs, rowsPerContent)
	if err != nil {
		return nil, fmt.Errorf("engagement for content query failed: %w", err)
	}
	defer rows.Close()

	return scanEngagementRecords(rows)
}

// EngagementForUser returns the user's own engagement rows, capped the same
// way as EngagementForContent.
func (s *EngagementStore) EngagementForUser(
	ctx context.Context,
	userID uuid.UUID,
	rowsPerContent int,
) ([]models.EngagementRecord, error) {
	query := `
		SELECT user_id, content_id, engagement_type, engagement_value, created_at
		FROM (
			SELECT user_id, content_id, engagement_type, engagement_value, created_at,
				ROW_NUMBER() OVER (PARTITION BY content_id ORDER BY user_id) AS row_num
			FROM engagements
			WHERE user_id = $1
		) ranked
		WHERE row_num <= $2`

	rows, err := s.db.Query(ctx, query, userID, rowsPerContent)
	if err != nil {
		return nil, fmt.Errorf("engagement for user query failed: %w", err)
	}
	defer rows.Close()

	return scanEngagementRecords(rows)
}

// ContentMetadata fetches generation metadata for the given content ids.
func (s *EngagementStore) ContentMetadata(
	ctx context.Context,
	contentIDs []uuid.UUID,
) ([]models.ContentMetadata, error) {
	query := `
		SELECT content_id, guidance_scale, num_inference_steps, artist_style, source
		FROM generated_content_metadata
		WHERE content_id = ANY($1)`

	rows, err := s.db.Query(ctx, query, contentIDs)
	if err != nil {
		return nil, fmt.Errorf("content metadata query failed: %w", err)
	}
	defer rows.Close()

	var metadata []models.ContentMetadata
	for rows.Next() {
		var m models.ContentMetadata
		if err := rows.Scan(&m.ContentID, &m.GuidanceScale, &m.NumInferenceSteps, &m.ArtistStyle, &m.Source); err != nil {
			s.logger.WithError(err).Error("Failed to scan content metadata")
			continue
		}
		metadata = append(metadata, m)
	}

	return metadata, rows.Err()
}

// InsertRecord appends one engagement row; used by the ingestion consumer.
func (s *EngagementStore) InsertRecord(ctx context.Context, record *models.EngagementRecord) error {
	query := `
		INSERT INTO engagements (user_id, content_id, engagement_type, engagement_value, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, query,
		record.UserID, record.ContentID, string(record.EngagementType),
		record.EngagementValue, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert engagement record: %w", err)
	}

	return nil
}

func scanEngagementRecords(rows pgx.Rows) ([]models.EngagementRecord, error) {
	var records []models.EngagementRecord
	for rows.Next() {
		var r models.EngagementRecord
		var engagementType string
		if err := rows.Scan(&r.UserID, &r.ContentID, &engagementType, &r.EngagementValue, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan engagement record: %w", err)
		}
		r.EngagementType = models.EngagementType(engagementType)
		records = append(records, r)
	}

	return records, rows.Err()
}
