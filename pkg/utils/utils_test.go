package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateUUIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateUUID()
		if !ValidFingerprintID(id) {
			t.Fatalf("generated id %q is not a valid fingerprint id", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestValidFingerprintID(t *testing.T) {
	for _, id := range []string{"", "a:b", "a/b", "has space"} {
		if ValidFingerprintID(id) {
			t.Errorf("ValidFingerprintID(%q) = true, want false", id)
		}
	}
	if !ValidFingerprintID("track-001") {
		t.Error("ValidFingerprintID(track-001) = false, want true")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	dst := filepath.Join(dir, "nested", "b.wav")

	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := MakeDir(filepath.Dir(dst)); err != nil {
		t.Fatal(err)
	}
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination missing: %v", err)
	}
	if err := MoveFile(src, dst); err == nil {
		t.Error("expected error moving a missing file")
	}
}
