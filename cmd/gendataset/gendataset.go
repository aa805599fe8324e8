package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/catalog"
	"github.com/cyclopcam/trashcam/pkg/dataset"
	"github.com/cyclopcam/trashcam/pkg/storage"
	"github.com/cyclopcam/trashcam/pkg/taxonomy"
)

func main() {
	def := dataset.DefaultOptions()

	parser := argparse.NewParser("gendataset", "Synthesize a multi-label trash dataset by compositing single-object images")
	taxonomyFile := parser.String("c", "config", &argparse.Options{Help: "Taxonomy JSON file (categories and aliases). If omitted, the built-in taxonomy is used", Default: ""})
	roots := parser.StringList("r", "root", &argparse.Options{Help: "Source root directory, containing one subdirectory per class. May be repeated", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output directory (or object prefix, when using --gcs-bucket)", Default: "dataset"})
	gcsBucket := parser.String("", "gcs-bucket", &argparse.Options{Help: "Write the dataset to this Google Cloud Storage bucket", Default: ""})
	count := parser.Int("n", "count", &argparse.Options{Help: "Number of examples to generate", Default: def.Count})
	minK := parser.Int("", "mink", &argparse.Options{Help: "Minimum number of objects per example", Default: def.MinK})
	maxK := parser.Int("", "maxk", &argparse.Options{Help: "Maximum number of objects per example", Default: def.MaxK})
	width := parser.Int("", "width", &argparse.Options{Help: "Width of each object cell", Default: def.Width})
	height := parser.Int("", "height", &argparse.Options{Help: "Height of each object cell", Default: def.Height})
	seed := parser.Int("s", "seed", &argparse.Options{Help: "Random seed", Default: int(def.Seed)})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Number of examples to generate concurrently", Default: def.Workers})
	valFrac := parser.Float("", "valfrac", &argparse.Options{Help: "Fraction of examples in the validation split", Default: def.ValidationFraction})
	splitSeed := parser.Int("", "splitseed", &argparse.Options{Help: "Random seed of the train/validation split", Default: int(def.SplitSeed)})
	quality := parser.Int("q", "quality", &argparse.Options{Help: "JPEG quality", Default: def.JPEGQuality})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	if err := run(logger, *taxonomyFile, *roots, *output, *gcsBucket, dataset.Options{
		Count:              *count,
		MinK:               *minK,
		MaxK:               *maxK,
		Width:              *width,
		Height:             *height,
		Seed:               uint64(*seed),
		Workers:            *workers,
		ValidationFraction: *valFrac,
		SplitSeed:          uint64(*splitSeed),
		JPEGQuality:        *quality,
		Pad:                def.Pad,
		Augment:            def.Augment,
	}); err != nil {
		logger.Errorf("%v", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(logger logs.Log, taxonomyFile string, roots []string, output, gcsBucket string, opts dataset.Options) error {
	tx := taxonomy.Default()
	if taxonomyFile != "" {
		var err error
		if tx, err = taxonomy.LoadFile(taxonomyFile); err != nil {
			return err
		}
	}

	cat, err := catalog.Build(logger, roots, tx)
	if err != nil {
		return err
	}
	cat.Log(logger)

	storeCfg := storage.Config{}
	if gcsBucket != "" {
		storeCfg.GCS = &storage.ConfigGCS{Bucket: gcsBucket, Prefix: output}
	} else {
		storeCfg.Filesystem = &storage.ConfigFS{Root: output}
	}

	store, err := storage.Open(logger, storeCfg)
	if err != nil {
		return err
	}
	gen, err := dataset.NewGenerator(logger, tx, cat, store, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := gen.Generate(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warnf("Interrupted. Label files were not written")
		res.Report.Log(logger)
		return err
	} else if err != nil {
		return err
	}
	res.Report.Log(logger)
	logger.Infof("Dataset written to %v", store.Location(""))
	return nil
}
