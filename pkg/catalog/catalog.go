// Package catalog discovers the source folders of every category.
// Our inputs are one or more root directories, each containing one subdirectory per raw class
// (eg "brown-glass"). The taxonomy resolves those folder names onto categories.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/imagex"
	"github.com/cyclopcam/trashcam/pkg/taxonomy"
)

// Catalog maps each category to the folders that hold its images.
// A Catalog is read-only after Build.
type Catalog struct {
	tx      *taxonomy.Taxonomy
	folders map[string][]string
}

// Build scans roots in the given order. Subdirectories are visited in name order,
// so that a given seed always produces the same dataset.
// Missing roots, unknown folder names, and folders without images are skipped.
func Build(log logs.Log, roots []string, tx *taxonomy.Taxonomy) (*Catalog, error) {
	c := &Catalog{
		tx:      tx,
		folders: map[string][]string{},
	}
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Warnf("Source root %v does not exist", root)
				continue
			}
			return nil, fmt.Errorf("Failed to read source root %v: %w", root, err)
		}
		names := []string{}
		for _, e := range entries {
			isDir := e.IsDir()
			if e.Type()&fs.ModeSymlink != 0 {
				// Datasets are often linked in from elsewhere, so follow the link
				if st, err := os.Stat(filepath.Join(root, e.Name())); err == nil {
					isDir = st.IsDir()
				}
			}
			if isDir {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			category, ok := tx.Resolve(name)
			if !ok {
				continue
			}
			dir := filepath.Join(root, name)
			has, err := imagex.HasImages(dir)
			if err != nil {
				log.Warnf("Skipping %v: %v", dir, err)
				continue
			}
			if !has {
				log.Warnf("Skipping %v: no supported images", dir)
				continue
			}
			c.folders[category] = append(c.folders[category], dir)
		}
	}
	return c, nil
}

// Folders returns the source folders of a category, in discovery order.
func (c *Catalog) Folders(category string) []string {
	return c.folders[category]
}

// Require returns a ConfigurationError naming every category that has no folders.
func (c *Catalog) Require(categories []string) error {
	missing := []string{}
	for _, cat := range categories {
		if len(c.folders[cat]) == 0 {
			missing = append(missing, cat)
		}
	}
	if len(missing) != 0 {
		return &ConfigurationError{
			Categories: missing,
			Msg:        "No source images for categories",
		}
	}
	return nil
}

// PickImage chooses a folder of the category uniformly, and then a file inside that folder uniformly.
// The folder is listed again now, so files that vanished after Build are never returned.
func (c *Catalog) PickImage(category string, rng *rand.Rand) (string, error) {
	folders := c.folders[category]
	if len(folders) == 0 {
		return "", &MissingSourceError{Category: category}
	}
	dir := folders[rng.IntN(len(folders))]
	files, err := imagex.ListImages(dir)
	if err != nil {
		return "", &MissingSourceError{Category: category, Folder: dir, Err: err}
	}
	if len(files) == 0 {
		return "", &MissingSourceError{Category: category, Folder: dir}
	}
	return filepath.Join(dir, files[rng.IntN(len(files))]), nil
}

// Summary returns the number of folders per category, in canonical order
func (c *Catalog) Summary() []CategoryFolders {
	out := []CategoryFolders{}
	for _, cat := range c.tx.Categories() {
		out = append(out, CategoryFolders{
			Category: cat,
			Folders:  len(c.folders[cat]),
		})
	}
	return out
}

type CategoryFolders struct {
	Category string
	Folders  int
}

// Log prints the summary
func (c *Catalog) Log(log logs.Log) {
	for _, s := range c.Summary() {
		log.Infof("%-10v %v folders", s.Category, s.Folders)
	}
}
