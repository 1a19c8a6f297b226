package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(nil).Level(zerolog.Disabled)

const profilesYAML = `
profiles:
  - name: flaky-fetch
    attempts: 5
    delay: 100ms
    backoff: 2.0
    matched_kinds: [NetworkFault]
    timeout: 30s
  - name: quiet
    attempts: 1
    fallback: -1
    log_level: warn
`

const singleProfileJSON = `{
  "name": "api",
  "attempts": 3,
  "delay": "250ms",
  "backoff": 1.5
}`

func TestParseProfilesList(t *testing.T) {
	profiles, err := Parse([]byte(profilesYAML), ".yaml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("Parsed %d profiles, want 2", len(profiles))
	}

	flaky := profiles[0]
	if flaky.Name != "flaky-fetch" || flaky.Attempts != 5 {
		t.Errorf("flaky = %+v", flaky)
	}
	if flaky.Delay.Std() != 100*time.Millisecond {
		t.Errorf("Delay = %v, want 100ms", flaky.Delay.Std())
	}
	if flaky.Timeout.Std() != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", flaky.Timeout.Std())
	}
	if len(flaky.MatchedKinds) != 1 || flaky.MatchedKinds[0] != "NetworkFault" {
		t.Errorf("MatchedKinds = %v", flaky.MatchedKinds)
	}

	quiet := profiles[1]
	if quiet.Fallback != -1 {
		t.Errorf("Fallback = %v, want -1", quiet.Fallback)
	}
	if quiet.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", quiet.LogLevel)
	}
	// Defaults applied to omitted fields.
	if quiet.Backoff != 1.0 {
		t.Errorf("Backoff = %g, want default 1.0", quiet.Backoff)
	}
}

func TestParseSingleProfile(t *testing.T) {
	profiles, err := Parse([]byte(singleProfileJSON), ".json")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("Parsed %d profiles, want 1", len(profiles))
	}
	if profiles[0].Name != "api" || profiles[0].Attempts != 3 {
		t.Errorf("profile = %+v", profiles[0])
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if _, err := Parse([]byte("{}"), ".json"); err == nil {
		t.Error("Expected an error for a document with no profiles")
	}
}

func TestParseInvalidProfile(t *testing.T) {
	bad := `
profiles:
  - name: broken
    attempts: 3
    backoff: 0.1
`
	if _, err := Parse([]byte(bad), ".yaml"); err == nil {
		t.Error("Expected a validation error for backoff below one")
	}
}

func TestLoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "profiles.yaml"), []byte(profilesYAML), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "api.json"), []byte(singleProfileJSON), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	loader := NewLoader(testLogger)
	profiles, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("Loaded %d profiles, want 3", len(profiles))
	}

	index := ByName(profiles)
	for _, name := range []string{"flaky-fetch", "quiet", "api"} {
		if _, ok := index[name]; !ok {
			t.Errorf("Profile %q not loaded", name)
		}
	}
}

func TestLoadFromFileCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(profilesYAML), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	loader := NewLoader(testLogger)
	first, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	// Overwrite the file; the cached copy should still be served.
	if err := os.WriteFile(path, []byte(singleProfileJSON), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cached, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(cached) != len(first) {
		t.Error("Second load should come from the cache")
	}

	loader.ClearCache()
	reloaded, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(reloaded) != 1 {
		t.Errorf("Loaded %d profiles after cache clear, want 1", len(reloaded))
	}
}

func TestWatchTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	if err := os.WriteFile(path, []byte(profilesYAML), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	loader := NewLoader(testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Profile, 1)
	err := loader.Watch(ctx, []string{dir}, func(profiles []Profile) error {
		select {
		case reloaded <- profiles:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer func() { _ = loader.StopWatching() }()

	// Modify the file and wait out the debounce.
	if err := os.WriteFile(path, []byte(singleProfileJSON), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case profiles := <-reloaded:
		if len(profiles) != 1 || profiles[0].Name != "api" {
			t.Errorf("Reloaded profiles = %+v", profiles)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Reload never triggered")
	}
}

func TestByNameLaterEntriesWin(t *testing.T) {
	profiles := []Profile{
		{Name: "x", Attempts: 1},
		{Name: "x", Attempts: 5},
	}
	index := ByName(profiles)
	if index["x"].Attempts != 5 {
		t.Errorf("Attempts = %d, want the later entry", index["x"].Attempts)
	}
}
