// internal/database/database_test.go
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"netsummary/internal/models"
	"netsummary/internal/neighbors"
)

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*DB, string, func()) {
	tempDir, err := os.MkdirTemp("", "netsummary-db-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, tempDir, cleanup
}

func testSnapshot(serial string, fetchedAt time.Time) neighbors.Snapshot {
	return neighbors.Snapshot{
		Serial:    serial,
		SourceMAC: "aa:bb:cc:00:00:10",
		FetchedAt: fetchedAt,
		Neighbors: []neighbors.Neighbor{
			{LocalPort: "1", Protocol: neighbors.ProtocolLLDP, SystemName: "edge", ChassisID: "aa:bb:cc:00:00:01", PortID: "Port 3"},
		},
	}
}

// TestNew tests database creation and initialization
func TestNew(t *testing.T) {
	db, tempDir, cleanup := setupTestDB(t)
	defer cleanup()

	dbPath := filepath.Join(tempDir, "test.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}

	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('neighbor_snapshots', 'summary_runs')").Scan(&tableCount)
	if err != nil {
		t.Errorf("Failed to count tables: %v", err)
	}
	if tableCount != 2 {
		t.Errorf("Expected 2 tables, got %d", tableCount)
	}
}

// TestNeighborSnapshots tests saving, replacing and loading snapshots
func TestNeighborSnapshots(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Second)
	err := db.SaveNeighborSnapshots("N_1", []neighbors.Snapshot{
		testSnapshot("Q2MS-0001", now),
		testSnapshot("Q2MR-0001", now.Add(-2*time.Hour)),
	})
	if err != nil {
		t.Fatalf("Failed to save snapshots: %v", err)
	}

	snaps, err := db.GetNeighborSnapshots("N_1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Failed to load snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("Expected 1 fresh snapshot, got %d", len(snaps))
	}
	snap := snaps["Q2MS-0001"]
	if len(snap.Neighbors) != 1 || snap.Neighbors[0].PortID != "Port 3" {
		t.Errorf("Expected neighbors to round trip, got %+v", snap.Neighbors)
	}
	if !snap.FetchedAt.Equal(now) {
		t.Errorf("Expected fetchedAt %v, got %v", now, snap.FetchedAt)
	}

	// replace the stale one
	if err := db.SaveNeighborSnapshots("N_1", []neighbors.Snapshot{testSnapshot("Q2MR-0001", now)}); err != nil {
		t.Fatalf("Failed to replace snapshot: %v", err)
	}
	snaps, _ = db.GetNeighborSnapshots("N_1", now.Add(-time.Hour))
	if len(snaps) != 2 {
		t.Errorf("Expected 2 snapshots after replace, got %d", len(snaps))
	}

	other, _ := db.GetNeighborSnapshots("N_2", time.Time{})
	if len(other) != 0 {
		t.Errorf("Expected networks to be isolated, got %d snapshots", len(other))
	}

	deleted, err := db.DeleteNeighborSnapshots("N_1")
	if err != nil || deleted != 2 {
		t.Errorf("Expected 2 deleted snapshots, got %d (%v)", deleted, err)
	}
}

// TestRecordAndGetRuns tests run history
func TestRecordAndGetRuns(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		network := "N_1"
		if i%2 == 1 {
			network = "N_2"
		}
		run := &models.SummaryRun{
			NetworkID:      network,
			RequestID:      fmt.Sprintf("req-%d", i),
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			DurationMs:     int64(100 * i),
			DeviceCount:    i,
			TopologySource: models.TopologyPrimary,
			Flavor:         "GAP",
			Status:         "completed",
		}
		id, err := db.RecordRun(run)
		if err != nil {
			t.Fatalf("Failed to record run: %v", err)
		}
		if id <= 0 || run.ID != id {
			t.Errorf("Expected run ID to be set, got %d / %d", id, run.ID)
		}
	}

	runs, err := db.GetRecentRuns(3, "")
	if err != nil {
		t.Fatalf("Failed to get recent runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].RequestID != "req-4" {
		t.Errorf("Expected most recent run first, got %s", runs[0].RequestID)
	}

	runs, _ = db.GetRecentRuns(10, "N_2")
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs for N_2, got %d", len(runs))
	}

	run, err := db.GetRun(runs[0].ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if run.Flavor != "GAP" || run.DurationMs != 300 {
		t.Errorf("Unexpected run: %+v", run)
	}

	if _, err := db.GetRun(9999); err == nil {
		t.Errorf("Expected error for missing run")
	}
}

// TestCleanOldData tests retention
func TestCleanOldData(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	db.SaveNeighborSnapshots("N_1", []neighbors.Snapshot{
		testSnapshot("old", now.AddDate(0, 0, -10)),
		testSnapshot("new", now),
	})
	db.RecordRun(&models.SummaryRun{NetworkID: "N_1", RequestID: "a", Timestamp: now.AddDate(0, 0, -40), Status: "completed"})
	db.RecordRun(&models.SummaryRun{NetworkID: "N_1", RequestID: "b", Timestamp: now, Status: "completed"})

	deleted, err := db.CleanOldData(7, 30)
	if err != nil {
		t.Fatalf("Failed to clean old data: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted rows, got %d", deleted)
	}

	stats, err := db.GetDatabaseStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats["snapshotCount"] != 1 || stats["runCount"] != 1 {
		t.Errorf("Expected one snapshot and one run left, got %v", stats)
	}
}

// TestGetDatabaseStats tests the statistics map
func TestGetDatabaseStats(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	stats, err := db.GetDatabaseStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if lastRun, ok := stats["lastRunTime"].(time.Time); !ok || !lastRun.IsZero() {
		t.Errorf("Expected zero last run time on empty database, got %v", stats["lastRunTime"])
	}

	runAt := time.Now().UTC().Truncate(time.Second)
	db.RecordRun(&models.SummaryRun{NetworkID: "N_1", RequestID: "a", Timestamp: runAt, Status: "completed"})
	db.RecordRun(&models.SummaryRun{NetworkID: "N_1", RequestID: "b", Timestamp: runAt.Add(-time.Minute), Status: "error"})

	stats, _ = db.GetDatabaseStats()
	if stats["runCount"] != 2 {
		t.Errorf("Expected 2 runs, got %v", stats["runCount"])
	}
	if lastRun := stats["lastRunTime"].(time.Time); !lastRun.Equal(runAt) {
		t.Errorf("Expected last run time %v, got %v", runAt, lastRun)
	}
	dist := stats["runStatusDistribution"].(map[string]int)
	if dist["completed"] != 1 || dist["error"] != 1 {
		t.Errorf("Unexpected status distribution: %v", dist)
	}
	if size, ok := stats["sizeBytes"].(int64); !ok || size <= 0 {
		t.Errorf("Expected positive database size, got %v", stats["sizeBytes"])
	}
}

// TestOptimizeAndBackup tests maintenance operations
func TestOptimizeAndBackup(t *testing.T) {
	db, tempDir, cleanup := setupTestDB(t)
	defer cleanup()

	db.RecordRun(&models.SummaryRun{NetworkID: "N_1", RequestID: "a", Status: "completed"})

	if err := db.OptimizeDatabase(); err != nil {
		t.Errorf("Failed to optimize database: %v", err)
	}

	path, err := db.BackupDatabase()
	if err != nil {
		t.Fatalf("Failed to backup database: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(tempDir, "backups") {
		t.Errorf("Expected backup under backups/, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected backup file to exist: %v", err)
	}
}

// TestExecuteWithRetry tests retry of busy errors only
func TestExecuteWithRetry(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	calls := 0
	err := db.ExecuteWithRetry(3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Expected success on third attempt, got %v after %d calls", err, calls)
	}

	calls = 0
	err = db.ExecuteWithRetry(3, time.Millisecond, func() error {
		calls++
		return errors.New("constraint failed")
	})
	if err == nil || calls != 1 {
		t.Errorf("Expected immediate failure, got %v after %d calls", err, calls)
	}
}

// TestConcurrentAccess tests concurrent snapshot writes and run inserts
func TestConcurrentAccess(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- db.SaveNeighborSnapshots("N_1", []neighbors.Snapshot{testSnapshot(fmt.Sprintf("S%d", i), time.Now())})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := db.RecordRun(&models.SummaryRun{NetworkID: "N_1", RequestID: fmt.Sprintf("r%d", i), Status: "completed"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent operation failed: %v", err)
		}
	}

	snaps, _ := db.GetNeighborSnapshots("N_1", time.Time{})
	if len(snaps) != 10 {
		t.Errorf("Expected 10 snapshots, got %d", len(snaps))
	}
}
