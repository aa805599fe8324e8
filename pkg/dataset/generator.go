// Package dataset synthesizes a multi-label training set. Each example is a wide canvas made by
// placing several single-object images side by side, and its label row is the multi-hot vector of
// the categories that went into it.
package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"path"
	"sort"
	"strconv"
	"sync"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/catalog"
	"github.com/cyclopcam/trashcam/pkg/compose"
	"github.com/cyclopcam/trashcam/pkg/imagex"
	"github.com/cyclopcam/trashcam/pkg/storage"
	"github.com/cyclopcam/trashcam/pkg/taxonomy"
	"golang.org/x/sync/errgroup"
)

// ErrorEntry is one line of the error log
type ErrorEntry struct {
	Index int
	Err   error
}

// Result of a generation run
type Result struct {
	Rows   []Row // Full label table, ordered by example index
	Train  []Row
	Val    []Row
	Errors []ErrorEntry // Ordered by example index
	Report Report
}

// Generator produces a dataset into a storage backend
type Generator struct {
	log     logs.Log
	tx      *taxonomy.Taxonomy
	catalog *catalog.Catalog
	store   storage.Storage
	opts    Options

	lock    sync.Mutex
	rows    []Row
	errors  []ErrorEntry
	errLog  io.WriteCloser
	nameLen int
}

// NewGenerator validates the options and the catalog.
// If any category has no source folders, a ConfigurationError is returned, and nothing is written.
func NewGenerator(log logs.Log, tx *taxonomy.Taxonomy, cat *catalog.Catalog, store storage.Storage, opts Options) (*Generator, error) {
	if err := opts.validate(tx.Len()); err != nil {
		return nil, err
	}
	if unaliased := tx.Unaliased(); len(unaliased) != 0 {
		return nil, &ConfigurationError{Categories: unaliased, Msg: "No aliases for categories"}
	}
	if err := cat.Require(tx.Categories()); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Generator{
		log:     log,
		tx:      tx,
		catalog: cat,
		store:   store,
		opts:    opts,
		nameLen: len(strconv.Itoa(max(opts.Count-1, 0))),
	}, nil
}

// ImageName returns the file name of example 'index', zero padded so that names sort in index order
func (g *Generator) ImageName(index int) string {
	return fmt.Sprintf("img_%0*d.jpg", g.nameLen, index)
}

// Generate runs all examples, and then writes the label table and its train/validation split.
// A failed example is recorded in the error log and skipped.
// If ctx is cancelled, no new examples are started, no CSV files are written, and ctx.Err() is returned
// together with the partial result.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	errLog, err := g.store.WriteFile(ErrorLogFile)
	if err != nil {
		return nil, &IOError{Op: "create", Path: g.store.Location(ErrorLogFile), Err: err}
	}
	g.errLog = errLog
	g.rows = nil
	g.errors = nil
	defer func() {
		g.errLog.Close()
		g.errLog = nil
	}()

	g.log.Infof("Generating %v examples of %v x %v, with %v to %v objects each", g.opts.Count, g.opts.Width, g.opts.Height, g.opts.MinK, g.opts.MaxK)

	var group errgroup.Group
	group.SetLimit(g.opts.Workers)
	for i := 0; i < g.opts.Count; i++ {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			row, err := g.makeExample(i, g.opts.randFor(i))
			if err != nil {
				g.addError(i, err)
			} else {
				g.addRow(row)
			}
			return nil
		})
	}
	group.Wait()

	sort.Slice(g.rows, func(i, j int) bool { return g.rows[i].Index < g.rows[j].Index })
	sort.Slice(g.errors, func(i, j int) bool { return g.errors[i].Index < g.errors[j].Index })

	res := &Result{
		Rows:   g.rows,
		Errors: g.errors,
	}
	if err := ctx.Err(); err != nil {
		res.Report = g.makeReport(res)
		return res, err
	}

	if len(res.Rows) != 0 {
		categories := g.tx.Categories()
		if err := WriteCSV(g.store, LabelsFile, categories, res.Rows); err != nil {
			return nil, err
		}
		res.Train, res.Val = Split(res.Rows, g.opts.ValidationFraction, g.opts.SplitSeed)
		if err := WriteCSV(g.store, TrainFile, categories, res.Train); err != nil {
			return nil, err
		}
		if err := WriteCSV(g.store, ValFile, categories, res.Val); err != nil {
			return nil, err
		}
	} else {
		g.log.Warnf("No examples were generated, so no label files were written")
	}
	res.Report = g.makeReport(res)
	return res, nil
}

func (g *Generator) addRow(row Row) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.rows = append(g.rows, row)
}

func (g *Generator) addError(index int, err error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.errors = append(g.errors, ErrorEntry{Index: index, Err: err})
	g.log.Warnf("Example %v failed: %v", index, err)
	if _, werr := fmt.Fprintf(g.errLog, "%v: %v\n", index, err); werr != nil {
		g.log.Errorf("Failed to write to error log: %v", werr)
	}
}

// makeExample builds and persists example 'index'.
// The order of random draws is: k, categories, then for each category its folder, file, and
// augmentation, and finally the shuffle of the cells.
func (g *Generator) makeExample(index int, rng *rand.Rand) (Row, error) {
	nCat := g.tx.Len()
	maxK := min(g.opts.MaxK, nCat)
	k := g.opts.MinK + rng.IntN(maxK-g.opts.MinK+1)
	chosen := rng.Perm(nCat)[:k]

	cells := make([]*cimg.Image, 0, k)
	labels := make([]uint8, nCat)
	for _, ci := range chosen {
		category := g.tx.Category(ci)
		src, err := g.catalog.PickImage(category, rng)
		if err != nil {
			return Row{}, err
		}
		img, err := imagex.ReadFile(src)
		if err != nil {
			return Row{}, &IOError{Op: "load", Path: src, Err: err}
		}
		img = g.opts.Augment.Sample(rng).Apply(img)
		cells = append(cells, compose.ResizeWithPad(img, g.opts.Width, g.opts.Height, g.opts.Pad))
		labels[ci] = 1
	}
	rng.Shuffle(len(cells), func(i, j int) {
		cells[i], cells[j] = cells[j], cells[i]
	})

	canvas, err := compose.Compose(cells, g.opts.Width, g.opts.Height)
	if err != nil {
		return Row{}, err
	}
	name := g.ImageName(index)
	full := path.Join(ImageDir, name)
	jpg, err := imagex.EncodeJPEG(canvas, g.opts.JPEGQuality)
	if err != nil {
		return Row{}, &IOError{Op: "encode", Path: full, Err: err}
	}
	if err := storage.WriteFile(g.store, full, bytes.NewReader(jpg)); err != nil {
		return Row{}, &IOError{Op: "write", Path: g.store.Location(full), Err: err}
	}
	return Row{
		Index:    index,
		Filename: name,
		Labels:   labels,
	}, nil
}
