package devicelist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doridoridoriand/pingalert/internal/config"
)

var sample = []config.Device{
	{IP: "192.168.1.1", Name: "Router"},
	{IP: "192.168.1.20", Name: "Drucker Büro"},
	{IP: "10.0.0.5", Name: "NAS <main>"},
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil))
	require.NoError(t, Validate(sample))

	err := Validate([]config.Device{{IP: "10.0.0.1", Name: "a"}, {IP: "10.0.0.1", Name: "b"}})
	assert.ErrorIs(t, err, ErrDuplicateIP)

	err = Validate([]config.Device{{IP: "", Name: "a"}})
	assert.ErrorIs(t, err, ErrInvalidDevice)

	err = Validate([]config.Device{{IP: "10.0.0.1", Name: "  "}})
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestValidateRejectsPaddedIP(t *testing.T) {
	err := Validate([]config.Device{{IP: "10.0.0.1", Name: "a"}, {IP: " 10.0.0.1", Name: "b"}})
	assert.ErrorIs(t, err, ErrInvalidDevice)

	err = Validate([]config.Device{{IP: "10.0.0.1\t", Name: "a"}})
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestDecodeTrimsBeforeCheckingDuplicates(t *testing.T) {
	_, err := Decode([]byte(`[{"ip": "10.0.0.1", "name": "a"}, {"ip": " 10.0.0.1 ", "name": "b"}]`), FormatJSON)
	assert.ErrorIs(t, err, ErrDuplicateIP)

	devices, err := Decode([]byte("- ip: \" 10.0.0.2\"\n  name: \" Switch \"\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []config.Device{{IP: "10.0.0.2", Name: "Switch"}}, devices)
}

func TestSaveJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home.json")
	require.NoError(t, Save(path, sample[:2]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "[\n" +
		"    {\n" +
		"        \"ip\": \"192.168.1.1\",\n" +
		"        \"name\": \"Router\"\n" +
		"    },\n" +
		"    {\n" +
		"        \"ip\": \"192.168.1.20\",\n" +
		"        \"name\": \"Drucker Büro\"\n" +
		"    }\n" +
		"]\n"
	assert.Equal(t, want, string(data))
}

func TestRoundTripPreservesOrder(t *testing.T) {
	for _, name := range []string{"list.json", "list.yaml", "list.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(path, sample))
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, sample, got)
		})
	}
}

func TestSaveEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, Save(path, nil))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"ip": "10.0.0.1", "name": `), 0o644))
	_, err := Load(bad)
	require.Error(t, err)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("- ip: 10.0.0.1\n  name: a\n- ip: 10.0.0.1\n  name: b\n"), 0o644))
	_, err = Load(dup)
	assert.ErrorIs(t, err, ErrDuplicateIP)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsInvalidWithoutTouchingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home.json")
	require.NoError(t, Save(path, sample))

	err := Save(path, []config.Device{{IP: "1.1.1.1", Name: "a"}, {IP: "1.1.1.1", Name: "b"}})
	assert.ErrorIs(t, err, ErrDuplicateIP)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestDirLifecycle(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "device_lists"))

	names, err := d.Names()
	require.NoError(t, err)
	assert.Empty(t, names)

	devices, err := d.AddDevice("office", config.Device{IP: " 10.0.0.1 ", Name: "Switch"})
	require.NoError(t, err)
	assert.Equal(t, []config.Device{{IP: "10.0.0.1", Name: "Switch"}}, devices)

	_, err = d.AddDevice("office", config.Device{IP: "10.0.0.1", Name: "Other"})
	assert.ErrorIs(t, err, ErrDuplicateIP)

	_, err = d.AddDevice("office", config.Device{IP: "10.0.0.2", Name: "AP"})
	require.NoError(t, err)
	require.NoError(t, d.Save("home", sample))
	require.NoError(t, os.WriteFile(filepath.Join(d.Root(), "notes.txt"), []byte("x"), 0o644))

	names, err = d.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "office"}, names)

	devices, err = d.RemoveDevice("office", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []config.Device{{IP: "10.0.0.2", Name: "AP"}}, devices)

	_, err = d.RemoveDevice("office", "10.9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.Delete("home"))
	assert.ErrorIs(t, d.Delete("home"), ErrNotFound)
	_, err = d.Load("home")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirKeepsExistingYAMLFormat(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "lab.yaml"), []byte("- ip: 10.1.0.1\n  name: gw\n"), 0o644))
	d := NewDir(root)

	_, err := d.AddDevice("lab", config.Device{IP: "10.1.0.2", Name: "db"})
	require.NoError(t, err)

	path, err := d.Path("lab")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "lab.yaml"), path)
	_, err = os.Stat(filepath.Join(root, "lab.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestDirRejectsBadNames(t *testing.T) {
	d := NewDir(t.TempDir())
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := d.Path(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}
