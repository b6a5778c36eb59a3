package gallery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testEntry(id, version string) Entry {
	return Entry{
		ID:       id,
		Version:  version,
		Metadata: json.RawMessage(`{"extensionName":"tool"}`),
		VSIXPath: id + "-" + version + ".vsix",
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	want := map[string]Entry{
		"acme.tool":  testEntry("acme.tool", "2.0.0"),
		"golang.go":  testEntry("golang.go", "0.41.2"),
		"ms-vscode+": testEntry("ms-vscode+", "1.0.0"),
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got := s.Load()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v; want %+v", got, want)
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(t.TempDir())

	got := s.Load()
	if len(got) != 0 {
		t.Errorf("Load() on missing file = %+v; want empty map", got)
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	s := NewStore(dir)
	got := s.Load()
	if len(got) != 0 {
		t.Errorf("Load() on corrupt file = %+v; want empty map", got)
	}
}

// TestStore_PutLowercasesKey verifies the store key is the canonical
// lower-cased id even when the entry carries mixed case.
func TestStore_PutLowercasesKey(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Put(testEntry("Acme.Tool", "2.0.0")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	entries := s.Load()
	if _, ok := entries["acme.tool"]; !ok {
		t.Errorf("entry not stored under lower-cased key; keys = %v", keys(entries))
	}
}

func TestStore_PutIsIncremental(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Put(testEntry("acme.tool", "2.0.0")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(testEntry("golang.go", "0.41.2")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	entries := s.Load()
	if len(entries) != 2 {
		t.Errorf("Load() has %d entries; want 2 (keys %v)", len(entries), keys(entries))
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Put(testEntry("acme.tool", "2.0.0")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Delete("ACME.tool", "never.existed"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if entries := s.Load(); len(entries) != 0 {
		t.Errorf("Load() after Delete = %+v; want empty", entries)
	}
}

// TestStore_SaveLeavesNoTempFiles verifies the atomic replace cleans up
// after itself: only gallery.json remains in the directory.
func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	if err := s.Save(map[string]Entry{"acme.tool": testEntry("acme.tool", "2.0.0")}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(files) != 1 || files[0].Name() != FileName {
		t.Errorf("directory contents = %v; want only %s", files, FileName)
	}
}

func keys(m map[string]Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
