// Package dataset resolves dataset IDs to expression matrix files on disk.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("dataset not found")

// Candidate file names inside a dataset directory, in lookup order.
var dataFiles = []string{"data.csv", "data.tsv", "data.h5ad"}

// Resolver maps a dataset ID to the file an algorithm reads.
type Resolver interface {
	Resolve(ctx context.Context, datasetID string) (string, error)
}

// FileResolver looks datasets up under <root>/<dataset_id>/.
type FileResolver struct {
	root string
}

func NewFileResolver(root string) *FileResolver {
	return &FileResolver{root: root}
}

// Resolve returns the absolute path of the dataset's data file. IDs that are
// empty, contain path separators or dot segments are reported as not found.
func (r *FileResolver) Resolve(ctx context.Context, datasetID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validID(datasetID) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, datasetID)
	}

	root, err := filepath.Abs(r.root)
	if err != nil {
		return "", fmt.Errorf("resolve datasets dir: %w", err)
	}
	dir := filepath.Join(root, datasetID)

	for _, name := range dataFiles {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat dataset file: %w", err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, datasetID)
}

func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}
