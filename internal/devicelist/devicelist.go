// Package devicelist reads and writes named device lists as JSON or YAML.
package devicelist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doridoridoriand/pingalert/internal/config"
)

var (
	// ErrDuplicateIP is returned when two devices share an IP.
	ErrDuplicateIP = errors.New("duplicate device ip")
	// ErrInvalidDevice is returned for a device with an empty ip or name.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrNotFound is returned when a list or device does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for list names that are empty or contain path elements.
	ErrInvalidName = errors.New("invalid list name")
)

// Format is the on-disk encoding of a list.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from the file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Validate checks that every device has an ip and a name and that ips are
// unique. An ip with surrounding whitespace is rejected.
func Validate(devices []config.Device) error {
	seen := make(map[string]int, len(devices))
	for i, dev := range devices {
		if strings.TrimSpace(dev.IP) == "" || strings.TrimSpace(dev.Name) == "" {
			return fmt.Errorf("device %d: %w: ip and name are required", i, ErrInvalidDevice)
		}
		if dev.IP != strings.TrimSpace(dev.IP) {
			return fmt.Errorf("device %d: %w: ip %q has surrounding whitespace", i, ErrInvalidDevice, dev.IP)
		}
		if j, ok := seen[dev.IP]; ok {
			return fmt.Errorf("devices %d and %d: %w: %s", j, i, ErrDuplicateIP, dev.IP)
		}
		seen[dev.IP] = i
	}
	return nil
}

// Encode renders devices in the given format. JSON uses a four space indent
// and keeps non-ASCII characters as-is.
func Encode(devices []config.Device, format Format) ([]byte, error) {
	if devices == nil {
		devices = []config.Device{}
	}
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(devices); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		if err := enc.Encode(devices); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// Decode parses a device list. The result is validated before it is returned.
func Decode(data []byte, format Format) ([]config.Device, error) {
	var devices []config.Device
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &devices); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &devices); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	if devices == nil {
		devices = []config.Device{}
	}
	for i := range devices {
		devices[i].IP = strings.TrimSpace(devices[i].IP)
		devices[i].Name = strings.TrimSpace(devices[i].Name)
	}
	if err := Validate(devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Load reads the list at path.
func Load(path string) ([]config.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	devices, err := Decode(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return devices, nil
}

// Save validates devices and writes them to path, replacing any previous
// content atomically.
func Save(path string, devices []config.Device) error {
	if err := Validate(devices); err != nil {
		return err
	}
	data, err := Encode(devices, FormatForPath(path))
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create list dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".devicelist-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
