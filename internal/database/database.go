// Package database provides the SQLite store of the network summary service.
// It persists neighbor discovery snapshots per network, as the second tier behind
// the in-memory cache, and the history of summary runs, and handles schema setup,
// maintenance and retention.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netsummary/internal/models"
	"netsummary/internal/neighbors"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	Path   string
	logger *zerolog.Logger
	sync.Mutex
}

// New creates a new database connection
func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database connection
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection parameters
	db.SetMaxOpenConns(1) // SQLite supports only one writer at a time
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	// Create logger
	logger := log.With().Str("component", "database").Logger()

	// Create DB instance
	dbInstance := &DB{
		DB:     db,
		Path:   path,
		logger: &logger,
	}

	// Initialize the database schema
	if err := dbInstance.initializeDB(); err != nil {
		db.Close()
		return nil, err
	}

	// Run PRAGMA statements for optimization
	if err := dbInstance.optimizeDB(); err != nil {
		logger.Warn().Err(err).Msg("Failed to set some database optimization parameters")
	}

	return dbInstance, nil
}

// Initialize database schema
func (db *DB) initializeDB() error {
	db.logger.Info().Msg("Initializing database schema")

	schema := `
	-- Neighbor discovery snapshots, one per device per network
	CREATE TABLE IF NOT EXISTS neighbor_snapshots (
		network_id TEXT NOT NULL,
		serial TEXT NOT NULL,
		payload TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		PRIMARY KEY (network_id, serial)
	);

	-- Summary runs
	CREATE TABLE IF NOT EXISTS summary_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		network_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		device_count INTEGER DEFAULT 0,
		topology_source TEXT,
		flavor TEXT,
		warnings INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_at ON neighbor_snapshots(fetched_at);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON summary_runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_network ON summary_runs(network_id);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

// optimizeDB sets SQLite optimization parameters
func (db *DB) optimizeDB() error {
	// Enable WAL mode so readers do not block the writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return err
	}

	// Set synchronous mode to NORMAL
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return err
	}

	// Set cache size
	if _, err := db.Exec("PRAGMA cache_size=-20000"); err != nil { // Approx 20MB cache
		db.logger.Warn().Err(err).Msg("Failed to set cache_size PRAGMA")
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout=10000"); err != nil { // 10 seconds
		db.logger.Warn().Err(err).Msg("Failed to set busy_timeout PRAGMA")
	}

	return nil
}

// ExecuteWithRetry attempts to execute a function with retries for transient errors
func (db *DB) ExecuteWithRetry(maxRetries int, retryDelay time.Duration, operation func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		// Check if the error is one we should retry
		if strings.Contains(err.Error(), "database is locked") ||
			strings.Contains(err.Error(), "busy") {
			db.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries).
				Msg("Retrying database operation")

			// Wait before retrying
			time.Sleep(retryDelay)
			// Increase delay for next attempt
			retryDelay = retryDelay * 2
			continue
		}

		// Not a retryable error
		break
	}

	return fmt.Errorf("database operation failed after %d attempts: %w", maxRetries, err)
}

// SaveNeighborSnapshots replaces the stored snapshots of the given devices
func (db *DB) SaveNeighborSnapshots(networkID string, snaps []neighbors.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	db.Lock()
	defer db.Unlock()

	return db.ExecuteWithRetry(3, 50*time.Millisecond, func() error {
		// Start a transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		// Rollback is a no-op after Commit
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO neighbor_snapshots (network_id, serial, payload, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(network_id, serial) DO UPDATE SET
				payload = excluded.payload,
				fetched_at = excluded.fetched_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare snapshot statement: %w", err)
		}
		defer stmt.Close()

		for _, snap := range snaps {
			data, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("failed to encode snapshot %s: %w", snap.Serial, err)
			}
			if _, err := stmt.Exec(networkID, snap.Serial, string(data), snap.FetchedAt.UTC()); err != nil {
				return fmt.Errorf("failed to save snapshot %s: %w", snap.Serial, err)
			}
		}

		// Commit the transaction
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// GetNeighborSnapshots returns the snapshots of a network fetched after notBefore,
// keyed by serial. Rows that fail to decode are skipped.
func (db *DB) GetNeighborSnapshots(networkID string, notBefore time.Time) (map[string]neighbors.Snapshot, error) {
	rows, err := db.Query(
		"SELECT serial, payload FROM neighbor_snapshots WHERE network_id = ? AND fetched_at >= ?",
		networkID, notBefore.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]neighbors.Snapshot)
	for rows.Next() {
		var serial, data string
		if err := rows.Scan(&serial, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		var snap neighbors.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			db.logger.Warn().Err(err).Str("serial", serial).Msg("Skipping undecodable snapshot")
			continue
		}
		out[serial] = snap
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return out, nil
}

// DeleteNeighborSnapshots removes every stored snapshot of a network
func (db *DB) DeleteNeighborSnapshots(networkID string) (int, error) {
	db.Lock()
	defer db.Unlock()

	res, err := db.Exec("DELETE FROM neighbor_snapshots WHERE network_id = ?", networkID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RecordRun stores a summary run and sets its ID
func (db *DB) RecordRun(run *models.SummaryRun) (int64, error) {
	db.Lock()
	defer db.Unlock()

	// Default to the current time
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now()
	}

	result, err := db.Exec(
		`INSERT INTO summary_runs
		(network_id, request_id, timestamp, duration_ms, device_count, topology_source, flavor, warnings, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.NetworkID, run.RequestID, run.Timestamp.UTC(), run.DurationMs, run.DeviceCount,
		run.TopologySource, run.Flavor, run.Warnings, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	run.ID = id
	return id, nil
}

const runColumns = `id, network_id, request_id, timestamp, duration_ms, device_count,
	topology_source, flavor, warnings, status, error_message`

func scanRun(scanner interface{ Scan(...interface{}) error }) (*models.SummaryRun, error) {
	var run models.SummaryRun
	var topologySource, flavor, errorMsg sql.NullString
	err := scanner.Scan(
		&run.ID,
		&run.NetworkID,
		&run.RequestID,
		&run.Timestamp,
		&run.DurationMs,
		&run.DeviceCount,
		&topologySource,
		&flavor,
		&run.Warnings,
		&run.Status,
		&errorMsg,
	)
	if err != nil {
		return nil, err
	}
	run.TopologySource = topologySource.String
	run.Flavor = flavor.String
	run.ErrorMessage = errorMsg.String
	return &run, nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id int64) (*models.SummaryRun, error) {
	run, err := scanRun(db.QueryRow("SELECT "+runColumns+" FROM summary_runs WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetRecentRuns retrieves the most recent runs, optionally for one network
func (db *DB) GetRecentRuns(limit int, networkID string) ([]*models.SummaryRun, error) {
	query := "SELECT " + runColumns + " FROM summary_runs"
	var args []interface{}
	if networkID != "" {
		query += " WHERE network_id = ?"
		args = append(args, networkID)
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.SummaryRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

// OptimizeDatabase performs database maintenance operations
func (db *DB) OptimizeDatabase() error {
	db.Lock()
	defer db.Unlock()

	db.logger.Info().Msg("Optimizing database")

	// Rebuild the database file to reclaim space
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	// Refresh query planner statistics
	if _, err := db.Exec("ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}

	// PRAGMA settings may reset after VACUUM
	if err := db.optimizeDB(); err != nil {
		db.logger.Warn().Err(err).Msg("Failed to reset optimization parameters after vacuum")
	}

	return nil
}

// BackupDatabase writes a consistent copy of the database next to it and returns
// the copy's path
func (db *DB) BackupDatabase() (string, error) {
	db.Lock()
	defer db.Unlock()

	backupDir := filepath.Join(filepath.Dir(db.Path), "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(db.Path), filepath.Ext(db.Path))
	backupPath := filepath.Join(backupDir, fmt.Sprintf("%s_%s%s", base, time.Now().Format("20060102_150405"), filepath.Ext(db.Path)))

	// Flush the WAL so the copy is complete
	if _, err := db.Exec("PRAGMA wal_checkpoint(FULL)"); err != nil {
		db.logger.Warn().Err(err).Msg("Failed to checkpoint WAL before backup")
	}

	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("failed to backup database: %w", err)
	}

	db.logger.Info().Str("path", backupPath).Msg("Database backup created")
	return backupPath, nil
}

// CleanOldData removes snapshots and runs older than their retention periods
func (db *DB) CleanOldData(snapshotRetentionDays, runRetentionDays int) (int, error) {
	db.Lock()
	defer db.Unlock()

	now := time.Now().UTC()

	// Start a transaction
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Ensure transaction is rolled back in case of error
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	// Delete expired snapshots
	res, err := tx.Exec("DELETE FROM neighbor_snapshots WHERE fetched_at < ?", now.AddDate(0, 0, -snapshotRetentionDays))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	snapshotCount, _ := res.RowsAffected()

	// Delete expired runs
	res, err = tx.Exec("DELETE FROM summary_runs WHERE timestamp < ?", now.AddDate(0, 0, -runRetentionDays))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	runCount, _ := res.RowsAffected()

	// Commit the transaction
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	// Set tx to nil to prevent rollback in deferred function
	tx = nil

	total := int(snapshotCount + runCount)

	db.logger.Info().
		Int("snapshots", int(snapshotCount)).
		Int("runs", int(runCount)).
		Int("total", total).
		Msg("Cleaned old data")

	return total, nil
}

// GetDatabaseStats returns statistics about the database
func (db *DB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var snapshotCount, networkCount int
	err := db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT network_id) FROM neighbor_snapshots").Scan(&snapshotCount, &networkCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot count: %w", err)
	}
	stats["snapshotCount"] = snapshotCount
	stats["networkCount"] = networkCount

	var runCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM summary_runs").Scan(&runCount); err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}
	stats["runCount"] = runCount

	// MAX() loses the column type, so the timestamp comes back as text
	var lastRun sql.NullString
	if err := db.QueryRow("SELECT MAX(timestamp) FROM summary_runs").Scan(&lastRun); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last run time: %w", err)
	}
	stats["lastRunTime"] = parseTimestamp(lastRun.String)

	// Get database file size
	if fileInfo, err := os.Stat(db.Path); err != nil {
		db.logger.Warn().Err(err).Msg("Failed to get database file size")
		stats["sizeBytes"] = int64(0)
	} else {
		stats["sizeBytes"] = fileInfo.Size()
	}

	// Get run status distribution
	statusDistribution := make(map[string]int)
	rows, err := db.Query("SELECT status, COUNT(*) FROM summary_runs GROUP BY status")
	if err != nil {
		db.logger.Warn().Err(err).Msg("Failed to get run status distribution")
	} else {
		defer rows.Close()
		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				db.logger.Warn().Err(err).Msg("Failed to scan run status row")
				continue
			}
			statusDistribution[status] = count
		}
	}
	stats["runStatusDistribution"] = statusDistribution

	return stats, nil
}

// parseTimestamp tries the layouts the SQLite driver writes timestamps in
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
