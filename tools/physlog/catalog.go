package physlog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"regionsim/physics/internal/detaillog"
)

// Entry is one detail log session found under a root directory.
type Entry struct {
	Dir      string             `json:"dir"`
	Manifest detaillog.Manifest `json:"manifest"`
}

// List walks the directory tree and returns every session manifest.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Every directory holding a manifest.json is one session.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "manifest.json" {
			return nil
		}
		dir := filepath.Dir(path)
		manifest, err := detaillog.ReadManifest(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		entries = append(entries, Entry{Dir: dir, Manifest: manifest})
		return nil
	})
	if err != nil {
		return nil, err
	}
	//2.- Group by region, oldest session first.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Manifest.Region == entries[j].Manifest.Region {
			return entries[i].Manifest.CreatedAt < entries[j].Manifest.CreatedAt
		}
		return entries[i].Manifest.Region < entries[j].Manifest.Region
	})
	return entries, nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
