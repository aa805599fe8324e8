package dataset

import (
	"image/color"
	"math/rand/v2"

	"github.com/cyclopcam/trashcam/pkg/augment"
	"github.com/cyclopcam/trashcam/pkg/compose"
	"github.com/cyclopcam/trashcam/pkg/imagex"
)

// Output names, relative to the root of the output storage
const (
	ImageDir     = "images"
	LabelsFile   = "labels.csv"
	TrainFile    = "train.csv"
	ValFile      = "val.csv"
	ErrorLogFile = "errors.log"
)

// Options controls a generation run
type Options struct {
	Count              int     // Number of examples to attempt
	MinK               int     // Minimum number of objects per example
	MaxK               int     // Maximum number of objects per example (clamped to the number of categories)
	Width              int     // Width of each object cell
	Height             int     // Height of each object cell, and of the whole canvas
	Seed               uint64  // Seed of the per-example random streams
	Workers            int     // Number of examples generated concurrently
	ValidationFraction float64 // Fraction of rows that go into the validation split
	SplitSeed          uint64  // Seed of the train/validation shuffle
	JPEGQuality        int
	Pad                color.RGBA     // Letterbox color
	Augment            augment.Params // Augmentation probabilities and jitter range

	// If not nil, RandSource provides the random stream of example 'index'.
	// It may be called concurrently when Workers > 1.
	RandSource func(index int) *rand.Rand
}

func DefaultOptions() Options {
	return Options{
		Count:              5000,
		MinK:               2,
		MaxK:               4,
		Width:              224,
		Height:             224,
		Seed:               1,
		Workers:            1,
		ValidationFraction: 0.2,
		SplitSeed:          42,
		JPEGQuality:        imagex.DefaultJPEGQuality,
		Pad:                compose.Black,
		Augment:            augment.DefaultParams(),
	}
}

func (o *Options) randFor(index int) *rand.Rand {
	if o.RandSource != nil {
		return o.RandSource(index)
	}
	return rand.New(rand.NewPCG(o.Seed, uint64(index)))
}

func (o *Options) validate(nCategories int) error {
	if o.Count < 0 {
		return configErrorf("Count may not be negative (%v)", o.Count)
	}
	if o.MinK < 1 {
		return configErrorf("MinK must be at least 1 (%v)", o.MinK)
	}
	if o.MaxK < o.MinK {
		return configErrorf("MaxK (%v) is less than MinK (%v)", o.MaxK, o.MinK)
	}
	if o.MinK > nCategories {
		return configErrorf("MinK (%v) is more than the number of categories (%v)", o.MinK, nCategories)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return configErrorf("Invalid object size %v x %v", o.Width, o.Height)
	}
	if o.ValidationFraction < 0 || o.ValidationFraction > 1 {
		return configErrorf("ValidationFraction must be between 0 and 1 (%v)", o.ValidationFraction)
	}
	if o.Augment.JitterMin < 0 || o.Augment.JitterMax < o.Augment.JitterMin {
		return configErrorf("Invalid jitter range [%v, %v]", o.Augment.JitterMin, o.Augment.JitterMax)
	}
	return nil
}
