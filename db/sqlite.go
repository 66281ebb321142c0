package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist. The hot
// query columns are promoted out of the JSON record so the timestamp and
// location indexes work.
func createTables(db *sql.DB) error {
	createAssessmentsTable := `
    CREATE TABLE IF NOT EXISTS assessments (
        id TEXT PRIMARY KEY,
        timestamp DATETIME NOT NULL,
        latitude REAL,
        longitude REAL,
        visual_risk_score REAL NOT NULL DEFAULT 0,
        risk_level TEXT NOT NULL,
        confidence REAL NOT NULL DEFAULT 0,
        partial INTEGER NOT NULL DEFAULT 0,
        image_source TEXT,
        image_content_hash TEXT,
        latency_ms REAL NOT NULL DEFAULT 0,
        record TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(timestamp);
    CREATE INDEX IF NOT EXISTS idx_assessments_location ON assessments(latitude, longitude);
    CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments(risk_level);
    `

	if _, err := db.Exec(createAssessmentsTable); err != nil {
		return fmt.Errorf("error creating assessments table: %s", err)
	}
	return nil
}

func (s *SQLiteClient) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreAssessment stores one completed assessment. The full record is kept
// as JSON next to the indexed columns.
func (s *SQLiteClient) StoreAssessment(assessment *models.RiskAssessment) error {
	record, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("error marshaling assessment: %s", err)
	}

	partialInt := 0
	if assessment.Partial {
		partialInt = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO assessments (
			id, timestamp, latitude, longitude, visual_risk_score,
			risk_level, confidence, partial, image_source,
			image_content_hash, latency_ms, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		assessment.ID,
		assessment.Timestamp,
		assessment.Latitude,
		assessment.Longitude,
		assessment.VisualRiskScore,
		string(assessment.RiskLevel),
		assessment.Confidence,
		partialInt,
		assessment.ImageSource,
		assessment.ImageContentHash,
		assessment.LatencyMs,
		string(record),
	)
	if err != nil {
		return fmt.Errorf("error storing assessment: %s", err)
	}
	return nil
}

// GetAssessmentByID retrieves one assessment by its identifier.
func (s *SQLiteClient) GetAssessmentByID(id string) (*models.RiskAssessment, bool, error) {
	row := s.db.QueryRow("SELECT record FROM assessments WHERE id = ?", id)

	var record string
	if err := row.Scan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to retrieve assessment: %s", err)
	}

	var assessment models.RiskAssessment
	if err := json.Unmarshal([]byte(record), &assessment); err != nil {
		return nil, false, fmt.Errorf("error unmarshaling assessment: %s", err)
	}
	return &assessment, true, nil
}

// GetRecentAssessments retrieves the newest assessments, most recent first.
func (s *SQLiteClient) GetRecentAssessments(limit int) ([]models.RiskAssessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT record FROM assessments
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying assessments: %s", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetAssessmentsByLocation retrieves assessments within a radius of a
// location using a flat-earth degree-box approximation, which is adequate
// at the radii the monitoring rotation uses.
func (s *SQLiteClient) GetAssessmentsByLocation(lat, lon, radiusKm float64) ([]models.RiskAssessment, error) {
	// Keep the longitude bound finite at the poles.
	cosLat := math.Cos(lat * math.Pi / 180.0)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}
	rows, err := s.db.Query(`
		SELECT record FROM assessments
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		  AND ABS(latitude - ?) < ? AND ABS(longitude - ?) < ?
		ORDER BY timestamp DESC
	`, lat, radiusKm/111.0, lon, radiusKm/(111.0*cosLat))
	if err != nil {
		return nil, fmt.Errorf("error querying assessments by location: %s", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLiteClient) TotalAssessments() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM assessments").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting assessments: %s", err)
	}
	return count, nil
}

func scanRecords(rows *sql.Rows) ([]models.RiskAssessment, error) {
	var assessments []models.RiskAssessment
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("error scanning assessment: %s", err)
		}
		var assessment models.RiskAssessment
		if err := json.Unmarshal([]byte(record), &assessment); err != nil {
			return nil, fmt.Errorf("error unmarshaling assessment: %s", err)
		}
		assessments = append(assessments, assessment)
	}
	return assessments, rows.Err()
}
