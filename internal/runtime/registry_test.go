package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join(t.TempDir(), "runtime", "sessions.json"))
}

func entry(id string) Entry {
	return Entry{
		BubbleID:      id,
		RepoPath:      "/repo",
		WorktreePath:  "/worktrees/repo/" + id,
		TmuxSession:   "pf-" + id,
		EngineVersion: "0.1.0",
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := testRegistry(t)

	if err := r.Register(entry("b_aaa111")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok, err := r.Get("b_aaa111")
	if err != nil || !ok {
		t.Fatalf("Get = %v, ok=%v", err, ok)
	}
	if got.TmuxSession != "pf-b_aaa111" {
		t.Errorf("TmuxSession = %q", got.TmuxSession)
	}
	if got.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt not stamped")
	}

	if _, ok, _ := r.Get("b_zzz999"); ok {
		t.Errorf("Get found an entry that was never registered")
	}
}

func TestRegistryUpsert(t *testing.T) {
	r := testRegistry(t)

	e := entry("b_aaa111")
	if err := r.Register(e); err != nil {
		t.Fatal(err)
	}
	e.EngineVersion = "0.2.0"
	if err := r.Register(e); err != nil {
		t.Fatal(err)
	}

	list, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("List has %d entries, want 1", len(list))
	}
	if list[0].EngineVersion != "0.2.0" {
		t.Errorf("EngineVersion = %q after upsert", list[0].EngineVersion)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := testRegistry(t)

	if err := r.Register(entry("b_aaa111")); err != nil {
		t.Fatal(err)
	}
	if err := r.Unregister("b_aaa111"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := r.Unregister("b_aaa111"); err != nil {
		t.Fatalf("second Unregister: %v", err)
	}
	list, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("List has %d entries after unregister", len(list))
	}
}

func TestRegistryTouch(t *testing.T) {
	r := testRegistry(t)
	stamp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return stamp }

	if err := r.Register(entry("b_aaa111")); err != nil {
		t.Fatal(err)
	}
	stamp = stamp.Add(time.Hour)
	if err := r.Touch("b_aaa111"); err != nil {
		t.Fatal(err)
	}
	got, _, err := r.Get("b_aaa111")
	if err != nil {
		t.Fatal(err)
	}
	if !got.UpdatedAt.Equal(stamp) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, stamp)
	}
	// Touching a missing entry is a no-op.
	if err := r.Touch("b_zzz999"); err != nil {
		t.Errorf("Touch on missing entry: %v", err)
	}
}

func TestRegistryCorruptFileReadsAsEmpty(t *testing.T) {
	r := testRegistry(t)
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(r.path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := r.List()
	if err != nil {
		t.Fatalf("List on corrupt file: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("corrupt file produced %d entries", len(list))
	}

	// The next write repairs the file.
	if err := r.Register(entry("b_aaa111")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "b_aaa111") {
		t.Errorf("registry file not repaired: %s", data)
	}
}

func TestRegistryNeverWritesNull(t *testing.T) {
	r := testRegistry(t)
	if err := r.Register(entry("b_aaa111")); err != nil {
		t.Fatal(err)
	}
	if err := r.Unregister("b_aaa111"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty registry serialized as %q, want []", data)
	}
}

func TestRegistryConcurrentWrites(t *testing.T) {
	r := testRegistry(t)
	ids := []string{"b_a1", "b_b2", "b_c3", "b_d4", "b_e5", "b_f6"}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- r.Register(entry(id))
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Register: %v", err)
		}
	}

	list, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != len(ids) {
		t.Errorf("List has %d entries, want %d", len(list), len(ids))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].BubbleID >= list[i].BubbleID {
			t.Errorf("List not sorted: %s before %s", list[i-1].BubbleID, list[i].BubbleID)
		}
	}
}
