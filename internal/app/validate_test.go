package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectThemeFilesRecursive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `{"k":"v"}`)
	mustWriteFile(t, filepath.Join(root, "b.txt"), `x`)
	mustWriteFile(t, filepath.Join(root, ".hidden.json"), `{}`)
	mustWriteFile(t, filepath.Join(root, "nested", "c.json"), `{"k":"v2"}`)
	mustWriteFile(t, filepath.Join(root, "nested", "d.jsonl"), `{"k":"v3"}`)
	mustWriteFile(t, filepath.Join(root, ".cache", "e.json"), `{}`)

	files, err := collectThemeFiles(root, true)
	if err != nil {
		t.Fatalf("collectThemeFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 theme files, got %d (%v)", len(files), files)
	}
}

func TestCollectThemeFilesNonRecursive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.json"), `{"k":"v"}`)
	mustWriteFile(t, filepath.Join(root, "nested", "c.json"), `{"k":"v2"}`)

	files, err := collectThemeFiles(root, false)
	if err != nil {
		t.Fatalf("collectThemeFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 theme file, got %d (%v)", len(files), files)
	}

	if _, err := collectThemeFiles(filepath.Join(root, "a.json"), false); err == nil {
		t.Fatalf("expected error when root is a file")
	}
}

func TestValidateThemeFileQuarantinesBadRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "themes.jsonl")
	mustWriteFile(t, path, `{"id":"a","statement":"Customers want clearer pricing tiers","subject":"Pricing"}
{"id":"b","statement":"Interview theme","origin":"interview","interview_ids":[]}
{"id":"c","statement":"Pricing tiers confuse buyers","origin":"discovered"}
`)

	themes, quarantined, err := validateThemeFile(path)
	if err != nil {
		t.Fatalf("validateThemeFile failed: %v", err)
	}
	if len(themes) != 2 {
		t.Fatalf("unexpected valid records: got %d want 2", len(themes))
	}
	if len(quarantined) != 1 || quarantined[0].ID != "b" || quarantined[0].Index != 1 {
		t.Fatalf("unexpected quarantine: %+v", quarantined)
	}
}

func TestValidateThemeFileRejectsBrokenContainer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.json")
	mustWriteFile(t, path, `[{"id":"a","statement":"x"}`)

	if _, _, err := validateThemeFile(path); err == nil {
		t.Fatalf("expected error for truncated array")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
