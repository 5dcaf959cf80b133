package record

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/log"
)

// CSVHeader is written as the first row of a new latency log.
var CSVHeader = []string{"Timestamp", "Device Name", "IP Address", "Latency (ms)"}

// CSVLatencyLog appends latency rows to a CSV file. Rows are written whole
// under a mutex so concurrent probes never interleave.
type CSVLatencyLog struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewCSVLatencyLog creates a recorder writing to path. The file is created on first use.
func NewCSVLatencyLog(path string, logger *log.Logger) *CSVLatencyLog {
	return &CSVLatencyLog{path: path, logger: log.OrNop(logger)}
}

// Path returns the CSV file path.
func (l *CSVLatencyLog) Path() string { return l.path }

// Record appends one row. Write failures are logged and otherwise ignored.
func (l *CSVLatencyLog) Record(device config.Device, latencyMs int, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.append(device, latencyMs, at); err != nil {
		l.logger.LogError("latency_log", err, map[string]interface{}{
			"path": l.path,
			"ip":   device.IP,
		})
	}
}

func (l *CSVLatencyLog) append(device config.Device, latencyMs int, at time.Time) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create latency log dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open latency log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat latency log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(CSVHeader); err != nil {
			return fmt.Errorf("write latency header: %w", err)
		}
	}
	row := []string{at.Format(timestampLayout), device.Name, device.IP, strconv.Itoa(latencyMs)}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write latency row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush latency log: %w", err)
	}
	return nil
}
