package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
	"github.com/doridoridoriand/pingalert/internal/log"
)

// TextEventLog appends one line per down alert to a plain text file.
type TextEventLog struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewTextEventLog creates an event log writing to path.
func NewTextEventLog(path string, logger *log.Logger) *TextEventLog {
	return &TextEventLog{path: path, logger: log.OrNop(logger)}
}

// Path returns the log file path.
func (l *TextEventLog) Path() string { return l.path }

func (l *TextEventLog) LogUnreachable(device config.Device, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.append(FormatEventLine(device, at)); err != nil {
		l.logger.LogError("event_log", err, map[string]interface{}{
			"path": l.path,
			"ip":   device.IP,
		})
	}
}

func (l *TextEventLog) append(line string) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create event log dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	return f.Close()
}
