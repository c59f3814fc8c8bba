// Package fixtures writes sample files for exercising an upload end to end.
package fixtures

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/microbecode/file-merkle-proofs/pkg/types"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 \n"

// Options controls fixture generation
type Options struct {
	Count int
	Size  int

	// Seed makes the generated contents reproducible
	Seed uint64

	// Prefix of every generated file name; defaults to "file"
	Prefix string
}

// FileName returns the name of the i-th fixture. Names sort in index order.
func FileName(prefix string, i int) string {
	if prefix == "" {
		prefix = "file"
	}
	return fmt.Sprintf("%s%04d.txt", prefix, i)
}

// Generate returns Count files of Size bytes each.
func Generate(opts Options) ([]types.FileData, error) {
	if opts.Count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if opts.Size < 0 {
		return nil, fmt.Errorf("size cannot be negative, got %d", opts.Size)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	files := make([]types.FileData, opts.Count)
	for i := range files {
		content := make([]byte, opts.Size)
		for j := range content {
			content[j] = alphabet[rng.IntN(len(alphabet))]
		}
		files[i] = types.FileData{Name: FileName(opts.Prefix, i), Content: content}
	}
	return files, nil
}

// WriteFiles writes files into dir, creating it if needed.
func WriteFiles(dir string, files []types.FileData) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	paths := make([]string, len(files))
	for i, f := range files {
		if f.Name != filepath.Base(f.Name) {
			return nil, fmt.Errorf("file name %q must not contain a path", f.Name)
		}
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths[i] = path
	}
	return paths, nil
}

// ReadFiles reads the named files from dir. Names keep their base name only.
func ReadFiles(dir string, names []string) ([]types.FileData, error) {
	files := make([]types.FileData, len(names))
	for i, name := range names {
		base := filepath.Base(name)
		content, err := os.ReadFile(filepath.Join(dir, base))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", base, err)
		}
		files[i] = types.FileData{Name: base, Content: content}
	}
	return files, nil
}

// RemoveFiles deletes the named files from dir.
func RemoveFiles(dir string, names []string) error {
	for _, name := range names {
		path := filepath.Join(dir, filepath.Base(name))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}
