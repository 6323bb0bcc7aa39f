package service

import (
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/coinfolio/taxledger-backend/internal/database"
)

// AppVersion is the application version reported by the version endpoint.
const AppVersion = "1.2.0"

// SystemService provides system-level operations like health checks
type SystemService struct {
	db *sql.DB
}

// NewSystemService creates a new SystemService
func NewSystemService(db *sql.DB) *SystemService {
	return &SystemService{db: db}
}

// CheckHealth verifies database connectivity
func (s *SystemService) CheckHealth() error {
	return database.HealthCheck(s.db)
}

// VersionInfo describes the running application and schema versions.
type VersionInfo struct {
	AppVersion string
	DbVersion  int64
}

// CheckVersion returns the application version and the applied schema version.
func (s *SystemService) CheckVersion() (VersionInfo, error) {
	dbVersion, err := goose.GetDBVersion(s.db)
	if err != nil {
		return VersionInfo{}, err
	}
	return VersionInfo{
		AppVersion: AppVersion,
		DbVersion:  dbVersion,
	}, nil
}
