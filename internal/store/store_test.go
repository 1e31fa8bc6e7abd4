package store

import (
	"reflect"
	"testing"

	"mcpdrift/internal/snapshot"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ServerInfo: map[string]interface{}{"name": "srv", "version": "1.2.3"},
		Tools: []interface{}{
			map[string]interface{}{"name": "add", "description": "adds numbers"},
			map[string]interface{}{"name": "search"},
		},
		Custom: map[string]interface{}{"ping": map[string]interface{}{}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	snap := sampleSnapshot()

	id, err := s.Save("release-1.0", "default", "v1.0.0", snap)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("Save returned empty id")
	}

	loaded, err := s.Load("release-1.0", "default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Sections(), snap.Sections()) {
		t.Errorf("round trip mismatch:\nwant %v\ngot  %v", snap.Sections(), loaded.Sections())
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	s := openTestStore(t)

	first := &snapshot.Snapshot{Tools: []interface{}{map[string]interface{}{"name": "old"}}}
	second := &snapshot.Snapshot{Tools: []interface{}{map[string]interface{}{"name": "new"}}}

	if _, err := s.Save("main", "default", "", first); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save("main", "default", "", second); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load("main", "default")
	if err != nil {
		t.Fatal(err)
	}
	tools := loaded.Tools.([]interface{})
	if len(tools) != 1 || tools[0].(map[string]interface{})["name"] != "new" {
		t.Errorf("replacement did not win: %v", tools)
	}

	baselines, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(baselines) != 1 {
		t.Errorf("expected one baseline after replacement, got %d", len(baselines))
	}
}

func TestSaveRejectsFailedSnapshot(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Save("x", "default", "", &snapshot.Snapshot{Err: "boom"}); err == nil {
		t.Error("failed snapshot should not be storable")
	}
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load("nope", "default"); err == nil {
		t.Error("missing baseline should error")
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t)
	snap := sampleSnapshot()

	if _, err := s.Save("a", "t1", "main", snap); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save("a", "t2", "main", snap); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save("b", "t1", "", snap); err != nil {
		t.Fatal(err)
	}

	baselines, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(baselines) != 3 {
		t.Fatalf("List = %d baselines, want 3", len(baselines))
	}

	n, err := s.Delete("a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Delete removed %d, want 2", n)
	}

	baselines, err = s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(baselines) != 1 || baselines[0].Label != "b" {
		t.Errorf("after delete: %v", baselines)
	}
}
