package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/internal/database"
)

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

type HealthService struct {
	db     *database.Database
	logger *logrus.Logger
}

func NewHealthService(db *database.Database, logger *logrus.Logger) *HealthService {
	return &HealthService{
		db:     db,
		logger: logger,
	}
}

func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	for name, err := range s.db.HealthCheck(ctx) {
		if err != nil {
			s.logger.WithError(err).WithField("service", name).Warn("Health check failed")
			status.Services[name] = "unhealthy"
			status.Status = "degraded"
		} else {
			status.Services[name] = "healthy"
		}
	}

	return status
}
