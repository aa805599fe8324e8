// Package augment applies random geometric and color perturbations to training images.
// All randomness comes from the caller's *rand.Rand, so a seeded generator reproduces a run.
package augment

import (
	"math"
	"math/rand/v2"

	"github.com/bmharper/cimg/v2"
)

// Params controls the probability and strength of each perturbation
type Params struct {
	FlipProbability   float64 // Probability of a horizontal mirror
	JitterProbability float64 // Probability of per-channel brightness jitter
	JitterMin         float64 // Minimum per-channel multiplier
	JitterMax         float64 // Maximum per-channel multiplier
}

func DefaultParams() Params {
	return Params{
		FlipProbability:   0.5,
		JitterProbability: 0.3,
		JitterMin:         0.8,
		JitterMax:         1.2,
	}
}

// Transform is one concrete draw of the random perturbations.
// The steps are applied in the order flip, rotate, jitter.
type Transform struct {
	Flip         bool       // Mirror horizontally
	QuarterTurns int        // Counter-clockwise rotation, in units of 90 degrees (0..3)
	Jitter       bool       // Scale the color channels
	ChannelScale [3]float64 // R,G,B multipliers (only used if Jitter is true)
}

// Sample draws a random transform.
// Rotation is always drawn, and 0 degrees is one of the four equally likely outcomes.
func (p Params) Sample(rng *rand.Rand) Transform {
	t := Transform{}
	t.Flip = rng.Float64() < p.FlipProbability
	t.QuarterTurns = rng.IntN(4)
	if rng.Float64() < p.JitterProbability {
		t.Jitter = true
		for i := range t.ChannelScale {
			t.ChannelScale[i] = p.JitterMin + rng.Float64()*(p.JitterMax-p.JitterMin)
		}
	}
	return t
}

// IsIdentity returns true if the transform leaves pixels unchanged
func (t Transform) IsIdentity() bool {
	return !t.Flip && t.QuarterTurns%4 == 0 && !t.Jitter
}

// Apply the transform to an RGB image.
// The source is never modified. Even an identity transform returns a new image.
func (t Transform) Apply(img *cimg.Image) *cimg.Image {
	out := img.Clone()
	if t.Flip {
		FlipHorizontal(out)
	}
	out = RotateQuarter(out, t.QuarterTurns)
	if t.Jitter {
		ScaleChannels(out, t.ChannelScale)
	}
	return out
}

// Augment applies a random transform drawn with the default parameters
func Augment(img *cimg.Image, rng *rand.Rand) *cimg.Image {
	return DefaultParams().Sample(rng).Apply(img)
}

// FlipHorizontal mirrors an RGB image in place
func FlipHorizontal(img *cimg.Image) {
	for y := 0; y < img.Height; y++ {
		row := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		for l, r := 0, img.Width-1; l < r; l, r = l+1, r-1 {
			row[l*3], row[r*3] = row[r*3], row[l*3]
			row[l*3+1], row[r*3+1] = row[r*3+1], row[l*3+1]
			row[l*3+2], row[r*3+2] = row[r*3+2], row[l*3+2]
		}
	}
}

// RotateQuarter rotates an RGB image counter-clockwise by quarterTurns * 90 degrees.
// The canvas is expanded, so 90 and 270 degree rotations swap width and height, and no pixels are lost.
// If quarterTurns is a multiple of 4, img is returned as-is.
func RotateQuarter(img *cimg.Image, quarterTurns int) *cimg.Image {
	quarterTurns = ((quarterTurns % 4) + 4) % 4
	if quarterTurns == 0 {
		return img
	}
	w, h := img.Width, img.Height
	if quarterTurns != 2 {
		w, h = h, w
	}
	dst := cimg.NewImage(w, h, img.Format)
	// cimg rotates clockwise for positive angles. With dst sized exactly, this takes the lossless discrete path.
	cimg.Rotate(img, dst, -float64(quarterTurns)*math.Pi/2, nil)
	return dst
}

// ScaleChannels multiplies each of the R,G,B channels by its own factor, in place.
// Results saturate at 0 and 255.
func ScaleChannels(img *cimg.Image, scale [3]float64) {
	var lut [3][256]uint8
	for c := 0; c < 3; c++ {
		for v := 0; v < 256; v++ {
			lut[c][v] = saturate(float64(v)*scale[c] + 0.5)
		}
	}
	for y := 0; y < img.Height; y++ {
		row := img.Pixels[y*img.Stride : y*img.Stride+img.Width*3]
		for i := 0; i < len(row); i += 3 {
			row[i] = lut[0][row[i]]
			row[i+1] = lut[1][row[i+1]]
			row[i+2] = lut[2][row[i+2]]
		}
	}
}

func saturate(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
