package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/crowdlens/internal/config"
	"github.com/temcen/crowdlens/pkg/models"
)

// UserSimilarityEngine precomputes a per-user neighbor map from a sparse
// user x content interaction matrix. The map is built at most once per
// process lifetime and is read-only afterward; picking up new engagement
// data requires a restart.
//
// Users whose interaction row over the top-content set is all zero have an
// undefined cosine similarity to everyone. Their neighbor list is empty.
type UserSimilarityEngine struct {
	store  EngagementSource
	config *config.FunnelConfig
	logger *logrus.Logger

	mu        sync.Mutex
	built     bool
	neighbors map[uuid.UUID][]uuid.UUID
	// engaged holds, per user, the distinct content ids the user touched in
	// the order they first appear in the engagement snapshot.
	engaged map[uuid.UUID][]uuid.UUID
	seen    map[uuid.UUID]map[uuid.UUID]bool
}

func NewUserSimilarityEngine(
	store EngagementSource,
	cfg *config.FunnelConfig,
	logger *logrus.Logger,
) *UserSimilarityEngine {
	return &UserSimilarityEngine{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Neighbors returns the precomputed list of the most similar users, ordered
// by similarity descending, self excluded, at most SimilarUsers entries.
func (e *UserSimilarityEngine) Neighbors(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if err := e.ensureBuilt(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	src := e.neighbors[userID]
	out := make([]uuid.UUID, len(src))
	copy(out, src)
	return out, nil
}

// Recommend returns up to n content ids the user has not engaged with,
// scored by the number of distinct neighbors who engaged with each. Ties
// keep the order in which content was first encountered while iterating
// neighbors. The result may be shorter than n.
func (e *UserSimilarityEngine) Recommend(ctx context.Context, userID uuid.UUID, n int) ([]uuid.UUID, []float64, error) {
	if err := e.ensureBuilt(ctx); err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := e.seen[userID]

	type vote struct {
		contentID uuid.UUID
		count     int
		order     int
	}

	votes := make(map[uuid.UUID]*vote)
	var accumulated []*vote

	for _, neighborID := range e.neighbors[userID] {
		for _, contentID := range e.engaged[neighborID] {
			if seen != nil && seen[contentID] {
				continue
			}
			if v, ok := votes[contentID]; ok {
				v.count++
				continue
			}
			v := &vote{contentID: contentID, count: 1, order: len(accumulated)}
			votes[contentID] = v
			accumulated = append(accumulated, v)
		}
	}

	sort.SliceStable(accumulated, func(i, j int) bool {
		if accumulated[i].count != accumulated[j].count {
			return accumulated[i].count > accumulated[j].count
		}
		return accumulated[i].order < accumulated[j].order
	})

	if len(accumulated) > n {
		accumulated = accumulated[:n]
	}

	contentIDs := make([]uuid.UUID, len(accumulated))
	scores := make([]float64, len(accumulated))
	for i, v := range accumulated {
		contentIDs[i] = v.contentID
		scores[i] = float64(v.count)
	}

	return contentIDs, scores, nil
}

// ensureBuilt runs the expensive build at most once. Concurrent first
// callers block until the single build completes; a failed build may be
// retried by a later caller.
func (e *UserSimilarityEngine) ensureBuilt(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.built {
		return nil
	}

	start := time.Now()
	if err := e.build(ctx); err != nil {
		return fmt.Errorf("similarity engine build failed: %w", err)
	}
	e.built = true

	e.logger.WithFields(logrus.Fields{
		"users":    len(e.neighbors),
		"duration": time.Since(start),
	}).Info("User similarity map built")

	return nil
}

func (e *UserSimilarityEngine) build(ctx context.Context) error {
	records, err := e.store.RecentRecords(ctx, e.config.MaxEngagementRows)
	if err != nil {
		return fmt.Errorf("failed to gather engagement data: %w", err)
	}

	e.engaged = make(map[uuid.UUID][]uuid.UUID)
	e.seen = make(map[uuid.UUID]map[uuid.UUID]bool)
	for _, r := range records {
		if e.seen[r.UserID] == nil {
			e.seen[r.UserID] = make(map[uuid.UUID]bool)
		}
		if !e.seen[r.UserID][r.ContentID] {
			e.seen[r.UserID][r.ContentID] = true
			e.engaged[r.UserID] = append(e.engaged[r.UserID], r.ContentID)
		}
	}

	topContent := topEngagedContent(records, e.config.TopContent)
	topSet := make(map[uuid.UUID]int, len(topContent))
	for i, contentID := range topContent {
		topSet[contentID] = i
	}

	// Aggregate non-Like engagement value per (user, content) over the top
	// content set. Likes are a separate signal and stay out of the matrix.
	type cell struct {
		row, col int
	}
	userIndex := make(map[uuid.UUID]int)
	var userIDs []uuid.UUID
	sums := make(map[cell]float64)

	for _, r := range records {
		col, ok := topSet[r.ContentID]
		if !ok || r.EngagementType == models.EngagementTypeLike {
			continue
		}
		row, ok := userIndex[r.UserID]
		if !ok {
			row = len(userIDs)
			userIndex[r.UserID] = row
			userIDs = append(userIDs, r.UserID)
		}
		sums[cell{row, col}] += r.EngagementValue
	}

	e.neighbors = make(map[uuid.UUID][]uuid.UUID, len(userIDs))
	if len(userIDs) == 0 {
		return nil
	}

	// Rows are ordered by user id ascending so the row-index tie-break is
	// stable across rebuilds.
	sortedUsers := make([]uuid.UUID, len(userIDs))
	copy(sortedUsers, userIDs)
	sort.Slice(sortedUsers, func(i, j int) bool { return lessUUID(sortedUsers[i], sortedUsers[j]) })
	remap := make(map[int]int, len(userIDs))
	for newRow, userID := range sortedUsers {
		remap[userIndex[userID]] = newRow
	}

	matrix := mat.NewDense(len(sortedUsers), len(topContent), nil)
	for c, v := range sums {
		matrix.Set(remap[c.row], c.col, v)
	}

	e.computeNeighbors(matrix, sortedUsers)
	return nil
}

// computeNeighbors normalizes each interaction row and fills the neighbor
// map from pairwise cosine similarity.
func (e *UserSimilarityEngine) computeNeighbors(matrix *mat.Dense, userIDs []uuid.UUID) {
	n, cols := matrix.Dims()

	normalized := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, cols)
		mat.Row(row, i, matrix)
		norm := floats.Norm(row, 2)
		if norm > 0 {
			floats.Scale(1/norm, row)
			normalized[i] = row
		}
	}

	k := e.config.SimilarUsers

	type scored struct {
		row int
		sim float64
	}

	for i := 0; i < n; i++ {
		if normalized[i] == nil {
			e.neighbors[userIDs[i]] = nil
			continue
		}

		candidates := make([]scored, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i || normalized[j] == nil {
				continue
			}
			candidates = append(candidates, scored{row: j, sim: floats.Dot(normalized[i], normalized[j])})
		}

		// Ties in similarity break by row index ascending.
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].sim != candidates[b].sim {
				return candidates[a].sim > candidates[b].sim
			}
			return candidates[a].row < candidates[b].row
		})

		if len(candidates) > k {
			candidates = candidates[:k]
		}

		neighborIDs := make([]uuid.UUID, len(candidates))
		for idx, c := range candidates {
			neighborIDs[idx] = userIDs[c.row]
		}
		e.neighbors[userIDs[i]] = neighborIDs
	}
}

// topEngagedContent picks the n content ids with the most engagement rows,
// ties broken by content id ascending.
func topEngagedContent(records []models.EngagementRecord, n int) []uuid.UUID {
	counts := make(map[uuid.UUID]int)
	for _, r := range records {
		counts[r.ContentID]++
	}

	contentIDs := make([]uuid.UUID, 0, len(counts))
	for contentID := range counts {
		contentIDs = append(contentIDs, contentID)
	}

	sort.Slice(contentIDs, func(i, j int) bool {
		if counts[contentIDs[i]] != counts[contentIDs[j]] {
			return counts[contentIDs[i]] > counts[contentIDs[j]]
		}
		return lessUUID(contentIDs[i], contentIDs[j])
	})

	if len(contentIDs) > n {
		contentIDs = contentIDs[:n]
	}
	return contentIDs
}
