package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/geekxflood/proteus/internal/types"
)

// mockConfigProvider implements the config.Provider interface for testing.
type mockConfigProvider struct {
	values map[string]interface{}
}

func newMockConfigProvider() *mockConfigProvider {
	return &mockConfigProvider{
		values: map[string]interface{}{
			"captures.file_extensions":   []string{".der", ".ber", ".bin"},
			"captures.max_file_size":     1024 * 1024,
			"captures.enable_hot_reload": false,
		},
	}
}

func (m *mockConfigProvider) GetString(path string, defaultValue ...string) (string, error) {
	if val, exists := m.values[path]; exists {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return "", nil
}

func (m *mockConfigProvider) GetInt(path string, defaultValue ...int) (int, error) {
	if val, exists := m.values[path]; exists {
		if i, ok := val.(int); ok {
			return i, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return 0, nil
}

func (m *mockConfigProvider) GetFloat(path string, defaultValue ...float64) (float64, error) {
	if val, exists := m.values[path]; exists {
		if f, ok := val.(float64); ok {
			return f, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return 0, nil
}

func (m *mockConfigProvider) GetBool(path string, defaultValue ...bool) (bool, error) {
	if val, exists := m.values[path]; exists {
		if b, ok := val.(bool); ok {
			return b, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return false, nil
}

func (m *mockConfigProvider) GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error) {
	if val, exists := m.values[path]; exists {
		if str, ok := val.(string); ok {
			return time.ParseDuration(str)
		}
		if d, ok := val.(time.Duration); ok {
			return d, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return 0, nil
}

func (m *mockConfigProvider) GetStringSlice(path string, defaultValue ...[]string) ([]string, error) {
	if val, exists := m.values[path]; exists {
		if slice, ok := val.([]string); ok {
			return slice, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return nil, nil
}

func (m *mockConfigProvider) GetMap(path string) (map[string]any, error) {
	if val, exists := m.values[path]; exists {
		if m, ok := val.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, nil
}

func (m *mockConfigProvider) Exists(path string) bool {
	_, exists := m.values[path]
	return exists
}

func (m *mockConfigProvider) Validate() error {
	return nil
}

// writeCapture writes raw bytes into dir as a capture file and returns its path.
func writeCapture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write capture file: %v", err)
	}
	return path
}

func newTestLoader(t *testing.T, dir string) *Loader {
	t.Helper()
	cfg := newMockConfigProvider()
	cfg.values["captures.directories"] = []string{dir}

	loader, err := NewLoader(cfg)
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	t.Cleanup(func() { loader.Close() })
	return loader
}

func TestNewLoader(t *testing.T) {
	loader := newTestLoader(t, t.TempDir())

	if loader.config == nil {
		t.Error("Config not set")
	}

	if loader.files == nil {
		t.Error("Files map not initialized")
	}

	if loader.stats == nil {
		t.Error("Stats not initialized")
	}
}

func TestNewLoaderNilConfig(t *testing.T) {
	_, err := NewLoader(nil)
	if err == nil {
		t.Fatal("Expected error for nil config, got nil")
	}

	expectedMsg := "configuration provider cannot be nil"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
}

func TestDefaultLoaderConfig(t *testing.T) {
	config := DefaultLoaderConfig()

	if len(config.CaptureDirectories) == 0 {
		t.Error("No default capture directories")
	}

	if len(config.FileExtensions) == 0 {
		t.Error("No default file extensions")
	}

	if config.MaxFileSize <= 0 {
		t.Error("Invalid max file size")
	}
}

func TestHasValidExtension(t *testing.T) {
	loader := newTestLoader(t, t.TempDir())

	testCases := []struct {
		path     string
		expected bool
	}{
		{"cert.der", true},
		{"packet.ber", true},
		{"cert.DER", true},
		{"blob.bin", true},
		{"readme.txt", false},
		{"noext", false},
	}

	for _, tc := range testCases {
		result := loader.hasValidExtension(tc.path)
		if result != tc.expected {
			t.Errorf("hasValidExtension(%s) = %v, expected %v", tc.path, result, tc.expected)
		}
	}
}

func TestShouldIgnoreFile(t *testing.T) {
	loader := newTestLoader(t, t.TempDir())

	testCases := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"_scratch", true},
		{"old.bak", true},
		{"upload.tmp", true},
		{"cert.der", false},
		{"packet.ber", false},
	}

	for _, tc := range testCases {
		result := loader.shouldIgnoreFile(tc.path)
		if result != tc.expected {
			t.Errorf("shouldIgnoreFile(%s) = %v, expected %v", tc.path, result, tc.expected)
		}
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()

	// SEQUENCE { INTEGER 5 }
	writeCapture(t, dir, "good.der", []byte{0x30, 0x03, 0x02, 0x01, 0x05})
	// Truncated payload
	writeCapture(t, dir, "bad.der", []byte{0x30, 0x05, 0x02})
	// Wrong extension, must be skipped
	writeCapture(t, dir, "notes.txt", []byte{0x30, 0x03, 0x02, 0x01, 0x05})

	loader := newTestLoader(t, dir)

	if err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	stats := loader.GetStats()
	if stats.FilesLoaded != 2 {
		t.Errorf("Expected 2 files loaded, got %d", stats.FilesLoaded)
	}
	if stats.DecodeErrors != 1 {
		t.Errorf("Expected 1 decode error, got %d", stats.DecodeErrors)
	}
	if stats.DirectoriesScanned != 1 {
		t.Errorf("Expected 1 directory scanned, got %d", stats.DirectoriesScanned)
	}

	good, exists := loader.GetFile(filepath.Join(dir, "good.der"))
	if !exists {
		t.Fatal("good.der not loaded")
	}
	if !good.DecodedOK {
		t.Errorf("good.der should decode cleanly, got error %q", good.DecodeError)
	}
	if good.RootType != "SEQUENCE" {
		t.Errorf("Expected root type SEQUENCE, got %s", good.RootType)
	}
	if good.NodeCount != 2 {
		t.Errorf("Expected 2 nodes, got %d", good.NodeCount)
	}
	if good.Record == nil || good.Record.TreeJSON == "" {
		t.Error("Expected tree JSON on decode record")
	}

	bad, exists := loader.GetFile(filepath.Join(dir, "bad.der"))
	if !exists {
		t.Fatal("bad.der not loaded")
	}
	if bad.DecodedOK {
		t.Error("bad.der should not decode cleanly")
	}
	if bad.Record.Status != types.StatusError {
		t.Errorf("Expected error status, got %s", bad.Record.Status)
	}

	if len(loader.GetValidFiles()) != 1 {
		t.Errorf("Expected 1 valid file, got %d", len(loader.GetValidFiles()))
	}
	if len(loader.GetAllFiles()) != 2 {
		t.Errorf("Expected 2 files total, got %d", len(loader.GetAllFiles()))
	}
}

func TestRecordHandler(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "good.der", []byte{0x02, 0x01, 0x07})

	loader := newTestLoader(t, dir)

	var records []*types.DecodeRecord
	loader.SetRecordHandler(func(record *types.DecodeRecord) {
		records = append(records, record)
	})

	if err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Transport != types.TransportFile {
		t.Errorf("Expected file transport, got %s", records[0].Transport)
	}
	if records[0].RootType != "INTEGER" {
		t.Errorf("Expected INTEGER root, got %s", records[0].RootType)
	}
	if records[0].DecodeDuration <= 0 {
		t.Errorf("Expected decode duration to be set, got %v", records[0].DecodeDuration)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "first.der", []byte{0x05, 0x00})

	loader := newTestLoader(t, dir)

	if err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loader.GetAllFiles()) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(loader.GetAllFiles()))
	}

	writeCapture(t, dir, "second.der", []byte{0x05, 0x00})

	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if len(loader.GetAllFiles()) != 2 {
		t.Errorf("Expected 2 files after reload, got %d", len(loader.GetAllFiles()))
	}

	first, _ := loader.GetFile(filepath.Join(dir, "first.der"))
	if first.LoadCount != 1 {
		t.Errorf("Reload resets the file map, expected load count 1, got %d", first.LoadCount)
	}
}

func TestGetStatsCopy(t *testing.T) {
	loader := newTestLoader(t, t.TempDir())

	stats := loader.GetStats()
	stats.FilesLoaded = 99

	if loader.GetStats().FilesLoaded == 99 {
		t.Error("GetStats should return a copy")
	}
}
