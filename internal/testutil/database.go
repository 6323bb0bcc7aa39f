package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Test Package
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database (destroyed when connection closes)
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	// Configure SQLite for testing
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = MEMORY", // Faster for tests
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			t.Fatalf("Failed to set pragma: %v", err)
		}
	}

	// Create schema
	if err := createTestSchema(db); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	// Cleanup when test ends
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestSchema creates all database tables for testing.
// Schema is synchronized with the embedded production migrations.
func createTestSchema(db *sql.DB) error {
	schema := `
		-- Report run table
		CREATE TABLE IF NOT EXISTS report (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status VARCHAR(10) NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			policy TEXT NOT NULL,
			total_gain_loss TEXT NOT NULL,
			taxable_gain_loss TEXT NOT NULL,
			per_asset TEXT NOT NULL,
			warnings TEXT,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		);

		-- Gain/loss record table
		CREATE TABLE IF NOT EXISTS gain_loss_record (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			report_id VARCHAR(36) NOT NULL,
			seq INTEGER NOT NULL,
			asset VARCHAR(20) NOT NULL,
			amount TEXT NOT NULL,
			proceeds TEXT NOT NULL,
			cost_basis TEXT NOT NULL,
			gain_loss TEXT NOT NULL,
			taxable BOOLEAN NOT NULL,
			bucket VARCHAR(30) NOT NULL,
			holding_period_days INTEGER NOT NULL,
			acquired_at DATETIME NOT NULL,
			disposed_at DATETIME NOT NULL,
			location VARCHAR(30) NOT NULL,
			crypto_to_crypto BOOLEAN NOT NULL,
			margin_derived BOOLEAN NOT NULL,
			FOREIGN KEY(report_id) REFERENCES report(id) ON DELETE CASCADE,
			CONSTRAINT unique_report_seq UNIQUE (report_id, seq)
		);

		-- Exchange credential table
		CREATE TABLE IF NOT EXISTS exchange_credential (
			location VARCHAR(30) NOT NULL PRIMARY KEY,
			api_key TEXT NOT NULL,
			api_secret TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		-- Historical price cache table
		CREATE TABLE IF NOT EXISTS price_cache (
			from_asset VARCHAR(20) NOT NULL,
			to_asset VARCHAR(20) NOT NULL,
			bucket DATETIME NOT NULL,
			price TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (from_asset, to_asset, bucket)
		);
	`

	_, err := db.Exec(schema)
	return err
}

// CleanDatabase truncates all tables in dependency order.
// Useful for reusing the same database across multiple tests.
func CleanDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	// Order matters: delete children before parents due to foreign keys
	tables := []string{
		"gain_loss_record",
		"report",
		"exchange_credential",
		"price_cache",
	}

	for _, table := range tables {
		query := "DELETE FROM " + table
		if _, err := db.Exec(query); err != nil {
			t.Fatalf("Failed to clean table %s: %v", table, err)
		}
	}
}

// CountRows returns the number of rows in a table.
// Useful for assertions in tests.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	query := "SELECT COUNT(*) FROM " + table
	err := db.QueryRow(query).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}

	return count
}

// AssertRowCount asserts that a table has the expected number of rows.
func AssertRowCount(t *testing.T, db *sql.DB, table string, expected int) {
	t.Helper()

	actual := CountRows(t, db, table)
	if actual != expected {
		t.Errorf("Expected %d rows in %s, got %d", expected, table, actual)
	}
}
