package app

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"horse.fit/themedup/internal/theme"
)

type validateResult struct {
	Files       int
	BadFiles    int
	Records     int
	Quarantined int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "testdata/themes", "Directory containing theme .json/.jsonl files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := collectThemeFiles(*dir, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}

	result := validateResult{}
	for _, path := range files {
		result.Files++

		themes, quarantined, err := validateThemeFile(path)
		if err != nil {
			result.BadFiles++
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
			continue
		}

		result.Records += len(themes)
		result.Quarantined += len(quarantined)
		for _, q := range quarantined {
			fmt.Fprintf(os.Stderr, "INVALID %s[%d] id=%q: %s\n", path, q.Index, q.ID, q.Reason)
		}
	}

	fmt.Printf(
		"validate files=%d bad_files=%d records=%d quarantined=%d dir=%s recursive=%t\n",
		result.Files,
		result.BadFiles,
		result.Records,
		result.Quarantined,
		strings.TrimSpace(*dir),
		*recursive,
	)

	if result.Files == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: no theme files found under %s\n", strings.TrimSpace(*dir))
		return 1
	}
	if result.BadFiles > 0 || result.Quarantined > 0 {
		return 1
	}
	return 0
}

// validateThemeFile parses one file the same way dedup --input does.
func validateThemeFile(path string) ([]theme.Theme, []theme.Quarantined, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read failed: %w", err)
	}
	return theme.ParseRecords(raw)
}

func isThemeFile(name string) bool {
	ext := filepath.Ext(name)
	return strings.EqualFold(ext, ".json") || strings.EqualFold(ext, ".jsonl")
}

// collectThemeFiles lists theme files under root in lexical order. Dot
// files and dot directories are skipped; without recursive only root's own
// entries are considered.
func collectThemeFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := filepath.Clean(strings.TrimSpace(root))
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("directory path is empty")
	}
	if info, err := os.Stat(cleanRoot); err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	err := filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if path == cleanRoot {
				return nil
			}
			if hidden || !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && isThemeFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}
	sort.Strings(files)
	return files, nil
}
