package catalog

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/taxonomy"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	tx, err := taxonomy.New([]string{"glass", "paper", "metal"}, map[string]string{
		"glass":       "glass",
		"brown-glass": "glass",
		"paper":       "paper",
		"metal":       "metal",
	})
	require.NoError(t, err)
	return tx
}

func TestBuild(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	touch(t, filepath.Join(rootA, "glass", "a.jpg"))
	touch(t, filepath.Join(rootA, "paper", "b.PNG"))
	touch(t, filepath.Join(rootA, "paper", "notes.txt"))
	touch(t, filepath.Join(rootA, "unknown", "c.jpg"))
	touch(t, filepath.Join(rootA, "metal", "readme.md")) // no supported images
	touch(t, filepath.Join(rootB, "brown-glass", "d.jpeg"))

	log := logs.NewTestingLog(t)
	c, err := Build(log, []string{rootA, filepath.Join(rootA, "does-not-exist"), rootB}, testTaxonomy(t))
	require.NoError(t, err)

	require.Equal(t, []string{filepath.Join(rootA, "glass"), filepath.Join(rootB, "brown-glass")}, c.Folders("glass"))
	require.Equal(t, []string{filepath.Join(rootA, "paper")}, c.Folders("paper"))
	require.Empty(t, c.Folders("metal"))

	require.NoError(t, c.Require([]string{"glass", "paper"}))
	err = c.Require([]string{"glass", "paper", "metal"})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, []string{"metal"}, cfgErr.Categories)
	require.Contains(t, err.Error(), "metal")

	summary := c.Summary()
	require.Equal(t, []CategoryFolders{{"glass", 2}, {"paper", 1}, {"metal", 0}}, summary)
}

func TestPickImage(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "paper", "1.jpg"))
	touch(t, filepath.Join(root, "paper", "2.jpg"))
	touch(t, filepath.Join(root, "paper", "3.gif"))
	touch(t, filepath.Join(root, "glass", "1.jpg"))

	c, err := Build(logs.NewTestingLog(t), []string{root}, testTaxonomy(t))
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		fn, err := c.PickImage("paper", rng)
		require.NoError(t, err)
		seen[filepath.Base(fn)] = true
	}
	require.Equal(t, map[string]bool{"1.jpg": true, "2.jpg": true, "3.gif": true}, seen)

	var missing *MissingSourceError
	_, err = c.PickImage("metal", rng)
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "metal", missing.Category)
	require.Equal(t, "", missing.Folder)

	// Folder emptied after the catalog was built
	require.NoError(t, os.Remove(filepath.Join(root, "glass", "1.jpg")))
	_, err = c.PickImage("glass", rng)
	require.True(t, errors.As(err, &missing))
	require.Equal(t, filepath.Join(root, "glass"), missing.Folder)
}

func TestBuildFollowsSymlinks(t *testing.T) {
	data := t.TempDir()
	touch(t, filepath.Join(data, "glass-images", "a.jpg"))
	touch(t, filepath.Join(data, "paper-images", "b.jpg"))
	touch(t, filepath.Join(data, "stray.jpg"))

	root := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(data, "glass-images"), filepath.Join(root, "glass")))
	require.NoError(t, os.Symlink(filepath.Join(data, "paper-images"), filepath.Join(root, "paper")))
	// A link to a file is not a category folder, and a dangling link is ignored
	require.NoError(t, os.Symlink(filepath.Join(data, "stray.jpg"), filepath.Join(root, "metal")))
	require.NoError(t, os.Symlink(filepath.Join(data, "gone"), filepath.Join(root, "brown-glass")))

	c, err := Build(logs.NewTestingLog(t), []string{root}, testTaxonomy(t))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "glass")}, c.Folders("glass"))
	require.Equal(t, []string{filepath.Join(root, "paper")}, c.Folders("paper"))
	require.Empty(t, c.Folders("metal"))
	require.NoError(t, c.Require([]string{"glass", "paper"}))

	fn, err := c.PickImage("glass", rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "glass", "a.jpg"), fn)
}

func TestPickImageKeepsListingError(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "paper", "1.jpg"))
	c, err := Build(logs.NewTestingLog(t), []string{root}, testTaxonomy(t))
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "paper")))
	_, err = c.PickImage("paper", rand.New(rand.NewPCG(1, 2)))
	var missing *MissingSourceError
	require.True(t, errors.As(err, &missing))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Contains(t, err.Error(), "Failed to list folder")
}
