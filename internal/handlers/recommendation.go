package handlers

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/internal/services"
	"github.com/temcen/crowdlens/internal/validation"
	"github.com/temcen/crowdlens/pkg/models"
)

type RecommendationHandler struct {
	logger    *logrus.Logger
	funnels   services.FunnelRunner
	validator *validator.Validate
}

func NewRecommendationHandler(logger *logrus.Logger, funnels services.FunnelRunner) *RecommendationHandler {
	return &RecommendationHandler{
		logger:    logger,
		funnels:   funnels,
		validator: validator.New(),
	}
}

// Get runs the cohort's funnel for one user and returns the ordered content
// ids. The result may be shorter than the requested limit.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_USER_ID", "message": "userId must be a valid UUID"},
		})
		return
	}

	req := models.RecommendationRequest{
		UserID: userID,
		Team:   models.TeamName(c.DefaultQuery("team", string(models.TeamStatic))),
		Limit:  10,
		Seed:   rand.Float64(),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		if req.Limit, err = strconv.Atoi(limitStr); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "INVALID_LIMIT", "message": "limit must be an integer"},
			})
			return
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if req.Offset, err = strconv.Atoi(offsetStr); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "INVALID_OFFSET", "message": "offset must be an integer"},
			})
			return
		}
	}

	if seedStr := c.Query("seed"); seedStr != "" {
		if req.Seed, err = strconv.ParseFloat(seedStr, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "INVALID_SEED", "message": "seed must be a number"},
			})
			return
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "VALIDATION_ERROR", "message": err.Error()},
		})
		return
	}

	sp, err := validation.ParseStartingPoint(c.Query("starting_point"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_STARTING_POINT", "message": err.Error()},
		})
		return
	}

	requestID := uuid.New()
	contentIDs, err := h.funnels.GetContentIDs(
		c.Request.Context(), req.Team, requestID, req.UserID,
		req.Limit, req.Offset, req.Seed, sp,
	)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"team":       req.Team,
			"user_id":    req.UserID,
		}).Error("Funnel request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "FUNNEL_FAILED", "message": "failed to generate recommendations"},
		})
		return
	}

	if contentIDs == nil {
		contentIDs = []uuid.UUID{}
	}

	c.JSON(http.StatusOK, models.RecommendationResponse{
		UserID:      req.UserID,
		Team:        req.Team,
		ContentIDs:  contentIDs,
		GeneratedAt: time.Now(),
	})
}
