package devicelist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/doridoridoriand/pingalert/internal/config"
)

var listExtensions = []string{".json", ".yaml", ".yml"}

// Dir manages the named lists stored in one directory.
type Dir struct {
	root string
}

// NewDir returns a manager for root. The directory is created on first save.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the managed directory.
func (d *Dir) Root() string { return d.root }

// Names returns the saved list names, sorted.
func (d *Dir) Names() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read lists dir: %w", err)
	}
	seen := make(map[string]bool)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !isListExt(ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the file backing name. An existing file in any supported
// format wins; otherwise the JSON path is returned.
func (d *Dir) Path(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	for _, ext := range listExtensions {
		p := filepath.Join(d.root, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(d.root, name+".json"), nil
}

// Load reads the named list.
func (d *Dir) Load(name string) ([]config.Device, error) {
	path, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes devices under name, keeping the format of an existing file.
func (d *Dir) Save(name string, devices []config.Device) error {
	path, err := d.Path(name)
	if err != nil {
		return err
	}
	return Save(path, devices)
}

// Delete removes the named list.
func (d *Dir) Delete(name string) error {
	path, err := d.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("list %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("delete list %q: %w", name, err)
	}
	return nil
}

// AddDevice appends dev to the named list, creating the list if needed.
func (d *Dir) AddDevice(name string, dev config.Device) ([]config.Device, error) {
	dev.IP = strings.TrimSpace(dev.IP)
	dev.Name = strings.TrimSpace(dev.Name)

	devices, err := d.Load(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		devices = []config.Device{}
	}
	for _, existing := range devices {
		if existing.IP == dev.IP {
			return nil, fmt.Errorf("ip %s is already in list %q: %w", dev.IP, name, ErrDuplicateIP)
		}
	}
	devices = append(devices, dev)
	if err := d.Save(name, devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// RemoveDevice drops the device with ip from the named list.
func (d *Dir) RemoveDevice(name, ip string) ([]config.Device, error) {
	devices, err := d.Load(name)
	if err != nil {
		return nil, err
	}
	out := make([]config.Device, 0, len(devices))
	found := false
	for _, dev := range devices {
		if dev.IP == ip {
			found = true
			continue
		}
		out = append(out, dev)
	}
	if !found {
		return nil, fmt.Errorf("ip %s in list %q: %w", ip, name, ErrNotFound)
	}
	if err := d.Save(name, out); err != nil {
		return nil, err
	}
	return out, nil
}

func isListExt(ext string) bool {
	for _, e := range listExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
