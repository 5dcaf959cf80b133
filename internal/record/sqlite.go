package record

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/log"
)

// dbTimeLayout has a fixed width so timestamps sort as text.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z"

// LatencySample is one stored latency row.
type LatencySample struct {
	At        time.Time
	Name      string
	IP        string
	LatencyMs int
}

// SQLiteHistory keeps latency samples and unreachable events in SQLite.
type SQLiteHistory struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLiteHistory opens or creates the database at path and applies the schema.
func OpenSQLiteHistory(path string, logger *log.Logger) (*SQLiteHistory, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS latency (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		name TEXT NOT NULL,
		ip TEXT NOT NULL,
		latency_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_latency_ip ON latency(ip, timestamp);
	CREATE TABLE IF NOT EXISTS unreachable_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		name TEXT NOT NULL,
		ip TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_unreachable_ip ON unreachable_events(ip);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &SQLiteHistory{db: db, logger: log.OrNop(logger)}, nil
}

// Close closes the database.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

func (h *SQLiteHistory) Record(device config.Device, latencyMs int, at time.Time) {
	_, err := h.db.Exec(
		`INSERT INTO latency (timestamp, name, ip, latency_ms) VALUES (?, ?, ?, ?)`,
		at.UTC().Format(dbTimeLayout), device.Name, device.IP, latencyMs,
	)
	if err != nil {
		h.logger.LogError("history", err, map[string]interface{}{"table": "latency", "ip": device.IP})
	}
}

func (h *SQLiteHistory) LogUnreachable(device config.Device, at time.Time) {
	_, err := h.db.Exec(
		`INSERT INTO unreachable_events (timestamp, name, ip) VALUES (?, ?, ?)`,
		at.UTC().Format(dbTimeLayout), device.Name, device.IP,
	)
	if err != nil {
		h.logger.LogError("history", err, map[string]interface{}{"table": "unreachable_events", "ip": device.IP})
	}
}

// RecentLatency returns up to limit samples for ip, newest first.
func (h *SQLiteHistory) RecentLatency(ip string, limit int) ([]LatencySample, error) {
	rows, err := h.db.Query(`
		SELECT timestamp, name, ip, latency_ms
		FROM latency
		WHERE ip = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, ip, limit)
	if err != nil {
		return nil, fmt.Errorf("query latency: %w", err)
	}
	defer rows.Close()

	var samples []LatencySample
	for rows.Next() {
		var s LatencySample
		var ts string
		if err := rows.Scan(&ts, &s.Name, &s.IP, &s.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan latency: %w", err)
		}
		s.At, err = time.Parse(dbTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse latency timestamp: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// UnreachableCount returns how many down events were stored for ip.
func (h *SQLiteHistory) UnreachableCount(ip string) (int, error) {
	var n int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM unreachable_events WHERE ip = ?`, ip).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unreachable events: %w", err)
	}
	return n, nil
}
