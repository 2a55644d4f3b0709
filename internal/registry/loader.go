// Package registry finds gguf model files for the in-process llama backend.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"foundationsd/internal/common/fsutil"
	"foundationsd/pkg/types"
)

// ErrNoModel is returned by Resolve when no gguf file is present yet.
var ErrNoModel = errors.New("no gguf model found")

// LoadDir scans a directory for *.gguf files and builds a registry from filenames.
// ID is the full filename (including extension); Path is the absolute file path.
// Results are sorted by ID.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{ID: name, Path: filepath.Join(abs, name)})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve picks the model file to load.
//
// An absolute or home-relative name is used as-is. A bare name is looked up in
// dir. An empty name selects the first gguf file in dir. A missing file or
// directory yields ErrNoModel so callers can keep polling while a download
// is in progress.
func Resolve(dir, name string) (string, error) {
	if name != "" && (filepath.IsAbs(name) || strings.HasPrefix(name, "~")) {
		p, err := fsutil.ExpandHome(name)
		if err != nil {
			return "", err
		}
		if !fsutil.PathExists(p) {
			return "", fmt.Errorf("%w: %s", ErrNoModel, p)
		}
		return p, nil
	}
	models, err := LoadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNoModel, dir)
		}
		return "", err
	}
	for _, m := range models {
		if name == "" || m.ID == name {
			return m.Path, nil
		}
	}
	if name == "" {
		return "", fmt.Errorf("%w in %s", ErrNoModel, dir)
	}
	return "", fmt.Errorf("%w: %s in %s", ErrNoModel, name, dir)
}
