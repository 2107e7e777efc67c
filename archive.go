package fgddem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DefaultMaxArchiveDepth is the default number of archive levels extracted,
// counting the outermost archive.
const DefaultMaxArchiveDepth = 4

var errUnsafePath = errors.New("unsafe path")

// IsArchive returns whether path names a zip archive.
func IsArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

// FindArchives returns the zip archives under dir in lexical order.
func FindArchives(dir string) ([]string, error) {
	return findFiles(dir, IsArchive)
}

// findFiles returns the regular files under dir for which match returns true.
func findFiles(dir string, match func(string) bool) ([]string, error) {
	var paths []string
	if err := filepath.WalkDir(dir, func(path string, dirEntry fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case dirEntry.Type().IsRegular() && match(path):
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", dir, ErrMissingInput, err)
	}
	return paths, nil
}

// ExtractArchive extracts the zip archive at path into dir and returns the
// paths of the extracted files. Archives found inside are extracted into a
// directory named after them, up to maxDepth levels in total; deeper archives
// are returned unextracted. Members that cannot be extracted are logged and
// skipped.
func ExtractArchive(path, dir string, maxDepth int) ([]string, error) {
	return extractArchive(path, dir, 1, maxDepth)
}

func extractArchive(path, dir string, depth, maxDepth int) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrMissingInput, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var paths []string
	for _, file := range r.File {
		if file.FileInfo().IsDir() {
			continue
		}
		target, err := extractFile(file, dir)
		if err != nil {
			Logf("%s: %s: %v", path, file.Name, err)
			continue
		}
		if !IsArchive(target) {
			paths = append(paths, target)
			continue
		}
		if depth >= maxDepth {
			paths = append(paths, target)
			continue
		}
		nestedDir := filepath.Join(filepath.Dir(target), archiveStem(target))
		nestedPaths, err := extractArchive(target, nestedDir, depth+1, maxDepth)
		if err != nil {
			Logf("%s: %v", path, err)
			continue
		}
		paths = append(paths, nestedPaths...)
	}
	return paths, nil
}

// extractFile extracts file into dir and returns the path of the extracted
// file.
func extractFile(file *zip.File, dir string) (string, error) {
	name := filepath.FromSlash(file.Name)
	if !filepath.IsLocal(name) {
		return "", errUnsafePath
	}
	target := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", err
	}
	return target, dst.Close()
}
