package detaillog

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"regionsim/physics/internal/logging"
)

func writeSessionDir(t *testing.T, root, name string, modTime time.Time, payload int) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string][]byte{
		manifestName:   []byte(`{"version":1}`),
		segmentName(0): make([]byte, payload),
	}
	for file, data := range files {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.Chtimes(dir, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return dir
}

func listSessions(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestCleanerEnforcesMaxSessions(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	//1.- Seed three sessions plus an unrelated folder without a manifest.
	writeSessionDir(t, root, "alpha", now.Add(-3*time.Hour), 64)
	writeSessionDir(t, root, "bravo", now.Add(-2*time.Hour), 32)
	writeSessionDir(t, root, "charlie", now.Add(-time.Hour), 48)
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cleaner := NewCleaner(root, RetentionPolicy{MaxSessions: 2}, logging.NewTestLogger()).WithClock(func() time.Time { return now })
	cleaner.RunOnce()

	remaining := listSessions(t, root)
	want := []string{"bravo", "charlie", "notes"}
	if len(remaining) != len(want) {
		t.Fatalf("unexpected remaining sessions %v", remaining)
	}
	for i := range want {
		if remaining[i] != want[i] {
			t.Fatalf("unexpected remaining sessions %v", remaining)
		}
	}
	stats := cleaner.Stats()
	if stats.Sessions != 2 {
		t.Fatalf("expected 2 sessions, got %d", stats.Sessions)
	}
	manifest := int64(len(`{"version":1}`))
	if stats.Bytes != 32+48+2*manifest {
		t.Fatalf("unexpected byte total %d", stats.Bytes)
	}
	if !stats.LastSweep.Equal(now) {
		t.Fatalf("unexpected last sweep %v", stats.LastSweep)
	}
}

func TestCleanerNeverRemovesActiveSession(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 7, 16, 9, 0, 0, 0, time.UTC)
	active := writeSessionDir(t, root, "active", now.Add(-72*time.Hour), 8)
	writeSessionDir(t, root, "stale", now.Add(-48*time.Hour), 8)
	writeSessionDir(t, root, "fresh", now.Add(-time.Hour), 8)

	cleaner := NewCleaner(root, RetentionPolicy{MaxAge: 36 * time.Hour, MaxSessions: 2}, logging.NewTestLogger()).
		Keep(active).
		WithClock(func() time.Time { return now })
	cleaner.RunOnce()

	remaining := listSessions(t, root)
	if len(remaining) != 2 || remaining[0] != "active" || remaining[1] != "fresh" {
		t.Fatalf("unexpected remaining sessions %v", remaining)
	}
}

func TestNilCleanerIsSafe(t *testing.T) {
	var cleaner *Cleaner
	cleaner.RunOnce()
	if stats := cleaner.Stats(); stats.Sessions != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if (RetentionPolicy{}).Active() {
		t.Fatal("zero policy must be inactive")
	}
}
