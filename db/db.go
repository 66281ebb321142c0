// Package db persists completed risk assessments. Two backends are
// supported: SQLite for single-node deployments (the default) and MongoDB
// for shared ones. The backend is selected through the DB_TYPE environment
// variable.
package db

import (
	"fmt"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// Client is the storage contract the rest of the system consumes. Records
// are append-only; assessments are immutable once written.
type Client interface {
	StoreAssessment(assessment *models.RiskAssessment) error
	GetAssessmentByID(id string) (*models.RiskAssessment, bool, error)
	GetRecentAssessments(limit int) ([]models.RiskAssessment, error)
	GetAssessmentsByLocation(lat, lon, radiusKm float64) ([]models.RiskAssessment, error)
	TotalAssessments() (int, error)
	Close() error
}

// NewClient builds the storage backend selected by DB_TYPE ("sqlite" or
// "mongo"). SQLite is the default and needs no configuration beyond an
// optional DB_PATH.
func NewClient() (Client, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")
	switch dbType {
	case "sqlite", "":
		return NewSQLiteClient(utils.GetEnv("DB_PATH", "storage/assessments.db"))
	case "mongo":
		return NewMongoClient(utils.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
			utils.GetEnv("MONGO_DATABASE", "riskmap"))
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}
}
