package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/catalog"
	"github.com/cyclopcam/trashcam/pkg/imagex"
	"github.com/cyclopcam/trashcam/pkg/storage"
	"github.com/cyclopcam/trashcam/pkg/taxonomy"
	"github.com/stretchr/testify/require"
)

func writeJPEG(t *testing.T, fn string, w, h int, c color.RGBA) {
	require.NoError(t, os.MkdirAll(filepath.Dir(fn), 0755))
	b, err := imagex.EncodeJPEG(imagex.NewFilled(w, h, c), 90)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fn, b, 0644))
}

func writePNG(t *testing.T, fn string, w, h int, c color.RGBA) {
	require.NoError(t, os.MkdirAll(filepath.Dir(fn), 0755))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(fn)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func threeCategories(t *testing.T) *taxonomy.Taxonomy {
	tx, err := taxonomy.New([]string{"glass", "paper", "metal"}, map[string]string{
		"glass":       "glass",
		"green-glass": "glass",
		"paper":       "paper",
		"metal":       "metal",
	})
	require.NoError(t, err)
	return tx
}

// Create a source tree with a few images per category
func makeSources(t *testing.T) string {
	root := t.TempDir()
	writeJPEG(t, filepath.Join(root, "glass", "a.jpg"), 40, 30, color.RGBA{0, 200, 0, 255})
	writePNG(t, filepath.Join(root, "green-glass", "b.png"), 20, 50, color.RGBA{0, 120, 0, 255})
	writeJPEG(t, filepath.Join(root, "paper", "c.jpg"), 64, 64, color.RGBA{250, 250, 250, 255})
	writePNG(t, filepath.Join(root, "paper", "d.png"), 10, 12, color.RGBA{220, 220, 200, 255})
	writeJPEG(t, filepath.Join(root, "metal", "e.JPG"), 33, 17, color.RGBA{120, 120, 140, 255})
	return root
}

func newGenerator(t *testing.T, roots []string, out string, opts Options) (*Generator, storage.Storage) {
	log := logs.NewTestingLog(t)
	tx := threeCategories(t)
	cat, err := catalog.Build(log, roots, tx)
	require.NoError(t, err)
	store, err := storage.NewStorageFS(log, out)
	require.NoError(t, err)
	g, err := NewGenerator(log, tx, cat, store, opts)
	require.NoError(t, err)
	return g, store
}

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Count = 20
	opts.Width = 32
	opts.Height = 24
	opts.Seed = 7
	return opts
}

func TestGenerate(t *testing.T) {
	out := t.TempDir()
	g, store := newGenerator(t, []string{makeSources(t)}, out, smallOptions())
	res, err := g.Generate(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Rows, 20)
	require.Empty(t, res.Errors)
	require.Equal(t, 20, res.Report.Generated)
	require.Equal(t, 0, res.Report.Failed)

	for i, row := range res.Rows {
		require.Equal(t, i, row.Index)
		require.Equal(t, g.ImageName(i), row.Filename)
		k := 0
		for _, v := range row.Labels {
			require.True(t, v == 0 || v == 1)
			k += int(v)
		}
		// MaxK=4 is clamped to the 3 categories
		require.GreaterOrEqual(t, k, 2)
		require.LessOrEqual(t, k, 3)

		img, err := imagex.ReadFile(filepath.Join(out, ImageDir, row.Filename))
		require.NoError(t, err)
		require.Equal(t, 32*k, img.Width)
		require.Equal(t, 24, img.Height)
	}
	require.Equal(t, "img_00.jpg", res.Rows[0].Filename)
	require.Equal(t, "img_19.jpg", res.Rows[19].Filename)

	// Positive counts agree with the rows
	for c := range res.Report.Categories {
		n := 0
		for _, row := range res.Rows {
			n += int(row.Labels[c])
		}
		require.Equal(t, n, res.Report.Positives[c])
	}

	// The full table round trips through CSV
	categories, rows, err := ReadCSV(store, LabelsFile)
	require.NoError(t, err)
	require.Equal(t, []string{"glass", "paper", "metal"}, categories)
	require.Len(t, rows, 20)
	for i := range rows {
		require.Equal(t, res.Rows[i].Filename, rows[i].Filename)
		require.Equal(t, res.Rows[i].Labels, rows[i].Labels)
	}

	// Train and val partition the table
	_, train, err := ReadCSV(store, TrainFile)
	require.NoError(t, err)
	_, val, err := ReadCSV(store, ValFile)
	require.NoError(t, err)
	require.Len(t, val, 4)
	require.Len(t, train, 16)
	seen := map[string]int{}
	for _, r := range append(train, val...) {
		seen[r.Filename]++
	}
	require.Len(t, seen, 20)
	for _, n := range seen {
		require.Equal(t, 1, n)
	}

	errLog, err := os.ReadFile(filepath.Join(out, ErrorLogFile))
	require.NoError(t, err)
	require.Empty(t, errLog)
}

func TestGenerateIsIndependentOfWorkers(t *testing.T) {
	src := makeSources(t)
	opts := smallOptions()
	g1, _ := newGenerator(t, []string{src}, t.TempDir(), opts)
	res1, err := g1.Generate(context.Background())
	require.NoError(t, err)

	opts.Workers = 4
	g4, _ := newGenerator(t, []string{src}, t.TempDir(), opts)
	res4, err := g4.Generate(context.Background())
	require.NoError(t, err)

	require.Equal(t, res1.Rows, res4.Rows)
	require.Equal(t, res1.Val, res4.Val)

	opts.Seed = 8
	gOther, _ := newGenerator(t, []string{src}, t.TempDir(), opts)
	resOther, err := gOther.Generate(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, res1.Rows, resOther.Rows)
}

func TestGenerateAllFail(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"glass", "paper", "metal"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, "broken.jpg"), []byte("not an image"), 0644))
	}
	out := t.TempDir()
	opts := smallOptions()
	opts.Count = 5
	g, _ := newGenerator(t, []string{root}, out, opts)
	res, err := g.Generate(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Rows)
	require.Len(t, res.Errors, 5)
	require.Equal(t, 0, res.Report.Generated)
	require.Equal(t, 5, res.Report.Failed)
	for i, e := range res.Errors {
		require.Equal(t, i, e.Index)
		var ioErr *IOError
		require.True(t, errors.As(e.Err, &ioErr))
	}

	for _, fn := range []string{LabelsFile, TrainFile, ValFile} {
		_, err := os.Stat(filepath.Join(out, fn))
		require.True(t, os.IsNotExist(err), fn)
	}
	errLog, err := os.ReadFile(filepath.Join(out, ErrorLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(errLog)), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "0: "))
	require.True(t, strings.HasPrefix(lines[4], "4: "))
}

func TestMissingCategoryAborts(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, filepath.Join(root, "glass", "a.jpg"), 8, 8, color.RGBA{0, 200, 0, 255})
	writeJPEG(t, filepath.Join(root, "paper", "b.jpg"), 8, 8, color.RGBA{200, 200, 200, 255})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "metal"), 0755))

	log := logs.NewTestingLog(t)
	tx := threeCategories(t)
	cat, err := catalog.Build(log, []string{root, filepath.Join(root, "missing")}, tx)
	require.NoError(t, err)
	out := t.TempDir()
	store, err := storage.NewStorageFS(log, out)
	require.NoError(t, err)

	_, err = NewGenerator(log, tx, cat, store, smallOptions())
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, []string{"metal"}, cfgErr.Categories)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestInvalidOptions(t *testing.T) {
	log := logs.NewTestingLog(t)
	tx := threeCategories(t)
	cat, err := catalog.Build(log, []string{makeSources(t)}, tx)
	require.NoError(t, err)
	store, err := storage.NewStorageFS(log, t.TempDir())
	require.NoError(t, err)

	for _, modify := range []func(o *Options){
		func(o *Options) { o.MinK = 0 },
		func(o *Options) { o.MaxK = 1 },
		func(o *Options) { o.MinK = 4; o.MaxK = 4 },
		func(o *Options) { o.Width = 0 },
		func(o *Options) { o.ValidationFraction = 1.5 },
		func(o *Options) { o.Count = -1 },
	} {
		opts := smallOptions()
		modify(&opts)
		_, err := NewGenerator(log, tx, cat, store, opts)
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr), "%+v", opts)
	}
}

func TestGenerateCancelled(t *testing.T) {
	out := t.TempDir()
	g, _ := newGenerator(t, []string{makeSources(t)}, out, smallOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := g.Generate(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, res.Rows)
	_, err = os.Stat(filepath.Join(out, LabelsFile))
	require.True(t, os.IsNotExist(err))
}

func TestSplit(t *testing.T) {
	require.Equal(t, 0, SplitCount(0, 0.2))
	require.Equal(t, 1, SplitCount(1, 0.2))
	require.Equal(t, 2, SplitCount(10, 0.2))
	require.Equal(t, 3, SplitCount(11, 0.2))
	require.Equal(t, 0, SplitCount(5, 0))
	require.Equal(t, 5, SplitCount(5, 1))
	require.Equal(t, 1, SplitCount(3, 0.33))

	// Products that are whole numbers must not round up due to float error
	require.Equal(t, 7, SplitCount(100, 0.07))
	for n := 1; n < 200; n++ {
		for pct := 1; pct < 100; pct++ {
			if (n*pct)%100 == 0 {
				require.Equal(t, n*pct/100, SplitCount(n, float64(pct)/100), "n=%v, fraction=%v", n, float64(pct)/100)
			}
		}
	}

	rows := []Row{}
	for i := 0; i < 10; i++ {
		rows = append(rows, Row{Index: i, Filename: "img_" + string(rune('0'+i)) + ".jpg", Labels: []uint8{1, 0}})
	}
	train, val := Split(rows, 0.2, 42)
	require.Len(t, val, 2)
	require.Len(t, train, 8)
	require.Equal(t, "img_0.jpg", rows[0].Filename, "input must not be reordered")

	for _, subset := range [][]Row{train, val} {
		for i := 1; i < len(subset); i++ {
			require.Less(t, subset[i-1].Filename, subset[i].Filename)
		}
	}
	inVal := map[string]bool{}
	for _, r := range val {
		inVal[r.Filename] = true
	}
	for _, r := range train {
		require.False(t, inVal[r.Filename])
	}

	train2, val2 := Split(rows, 0.2, 42)
	require.Equal(t, train, train2)
	require.Equal(t, val, val2)
}

func TestThreeCategoryScenario(t *testing.T) {
	out := t.TempDir()
	opts := smallOptions()
	opts.Count = 3
	opts.MinK = 2
	opts.MaxK = 2
	opts.ValidationFraction = 0.33
	g, store := newGenerator(t, []string{makeSources(t)}, out, opts)
	res, err := g.Generate(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	for i, row := range res.Rows {
		require.Equal(t, fmt.Sprintf("img_%v.jpg", i), row.Filename)
		ones := 0
		for _, v := range row.Labels {
			ones += int(v)
		}
		require.Equal(t, 2, ones)
		require.Len(t, row.Labels, 3)
		_, err := os.Stat(filepath.Join(out, ImageDir, row.Filename))
		require.NoError(t, err)
	}

	_, rows, err := ReadCSV(store, LabelsFile)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	_, val, err := ReadCSV(store, ValFile)
	require.NoError(t, err)
	_, train, err := ReadCSV(store, TrainFile)
	require.NoError(t, err)
	require.Len(t, val, 1)
	require.Len(t, train, 2)
	require.Equal(t, 1, res.Report.Val)
	require.Equal(t, 2, res.Report.Train)
}

func TestImageNameWidth(t *testing.T) {
	src := makeSources(t)
	for _, c := range []struct {
		count int
		first string
		last  string
	}{
		{1, "img_0.jpg", "img_0.jpg"},
		{10, "img_0.jpg", "img_9.jpg"},
		{11, "img_00.jpg", "img_10.jpg"},
		{5000, "img_0000.jpg", "img_4999.jpg"},
	} {
		opts := smallOptions()
		opts.Count = c.count
		g, _ := newGenerator(t, []string{src}, t.TempDir(), opts)
		require.Equal(t, c.first, g.ImageName(0))
		require.Equal(t, c.last, g.ImageName(c.count-1))
	}
}
