package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"screencap/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.ActiveProfile != domain.ProfileMedium {
		t.Fatalf("profile = %q, want medium", cfg.ActiveProfile)
	}
	if !cfg.IncludeMic || !cfg.IncludeSystemAudio {
		t.Fatalf("audio defaults = %+v, want both enabled", cfg)
	}
	if cfg.ExportDir == "" {
		t.Fatal("expected non-empty export dir")
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		IncludeMic:         false,
		IncludeSystemAudio: true,
		ActiveProfile:      domain.ProfileHigh,
		ExportDir:          "/out",
		LogLevel:           "debug",
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadPartialFileKeepsDefaults fills fields the file omits.
func TestJSONStoreLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"includeMic": false}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.IncludeMic {
		t.Fatal("includeMic = true, want false from file")
	}
	if !got.IncludeSystemAudio || got.ActiveProfile != domain.ProfileMedium {
		t.Fatalf("settings = %+v, want defaults for omitted fields", got)
	}
}

// TestNormalize cleans user-entered values.
func TestNormalize(t *testing.T) {
	got := Normalize(domain.Settings{
		ActiveProfile: " HIGH ",
		ExportDir:     "  ",
		LogLevel:      "WARNING",
	})
	if got.ActiveProfile != domain.ProfileHigh {
		t.Fatalf("profile = %q, want high", got.ActiveProfile)
	}
	if got.ExportDir != DefaultSettings().ExportDir {
		t.Fatalf("export dir = %q, want default", got.ExportDir)
	}
	if got.LogLevel != "warn" {
		t.Fatalf("log level = %q, want warn", got.LogLevel)
	}

	got = Normalize(domain.Settings{ActiveProfile: "ultra", ExportDir: "~/clips", LogLevel: "loud"})
	if got.ActiveProfile != domain.ProfileMedium || got.LogLevel != "info" {
		t.Fatalf("settings = %+v, want fallbacks", got)
	}
	if got.ExportDir != filepath.Join(HomeDir(), "clips") {
		t.Fatalf("export dir = %q, want expanded home", got.ExportDir)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestJSONStoreConcurrentSavesStayReadable checks two writers on one file
// never leave a torn or temporary file behind.
func TestJSONStoreConcurrentSavesStayReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	profiles := []domain.ProfileID{domain.ProfileLow, domain.ProfileHigh}

	var wg sync.WaitGroup
	for _, id := range profiles {
		wg.Add(1)
		go func(id domain.ProfileID) {
			defer wg.Done()
			store := NewJSONStore(path)
			for i := 0; i < 20; i++ {
				if err := store.Save(domain.Settings{ActiveProfile: id, ExportDir: "/out"}); err != nil {
					t.Errorf("Save(%s) error = %v", id, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ActiveProfile != domain.ProfileLow && got.ActiveProfile != domain.ProfileHigh {
		t.Fatalf("profile = %q, want one of the writers", got.ActiveProfile)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if name := e.Name(); name != "settings.json" && name != "settings.json.lock" {
			t.Fatalf("unexpected file %q left in settings dir", name)
		}
	}
}
