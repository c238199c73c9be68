// Package report renders human-readable summaries of models and
// directories for the CLI.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
)

// TreeOptions controls directory tree rendering.
type TreeOptions struct {
	// IgnoreDirs are directory names to skip entirely.
	IgnoreDirs []string

	// IgnoreExts are file suffixes (with leading dot) to omit.
	IgnoreExts []string

	// ShowTimes appends each file's modification time.
	ShowTimes bool

	// MaxDepth limits recursion; 0 means unlimited.
	MaxDepth int
}

// DefaultIgnoreDirs are directories that hold no model files worth
// listing.
var DefaultIgnoreDirs = []string{".git", "__pycache__", ".venv", "node_modules", ".idea"}

// Tree renders the directory under root as a connected tree. Entries
// are listed name-sorted, directories first.
func Tree(root string, opts TreeOptions) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}

	w := list.NewWriter()
	w.SetStyle(list.StyleConnectedRounded)
	w.AppendItem(filepath.Base(filepath.Clean(root)) + "/")
	w.Indent()
	if err := appendDir(w, root, 1, opts); err != nil {
		return "", err
	}
	w.UnIndent()
	return w.Render(), nil
}

func appendDir(w list.Writer, dir string, depth int, opts TreeOptions) error {
	if opts.MaxDepth > 0 && depth > opts.MaxDepth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			if contains(opts.IgnoreDirs, name) {
				continue
			}
			w.AppendItem(name + "/")
			w.Indent()
			if err := appendDir(w, filepath.Join(dir, name), depth+1, opts); err != nil {
				return err
			}
			w.UnIndent()
			continue
		}

		if ignoredExt(opts.IgnoreExts, name) {
			continue
		}
		label := name
		if opts.ShowTimes {
			if info, err := entry.Info(); err == nil {
				label = fmt.Sprintf("%s  (%s)", name, info.ModTime().Format("2006-01-02 15:04"))
			}
		}
		w.AppendItem(label)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func ignoredExt(exts []string, name string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
