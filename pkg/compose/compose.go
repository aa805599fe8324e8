// Package compose normalizes object images to a fixed cell size, and concatenates
// them side by side into one wide training canvas.
package compose

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/trashcam/pkg/imagex"
)

// Black is the default padding color
var Black = color.RGBA{0, 0, 0, 255}

var ErrNoImages = errors.New("No images to compose")

// Placement describes where the resized content lands inside the padded cell
type Placement struct {
	X      int // Left edge of the content
	Y      int // Top edge of the content
	Width  int // Width of the scaled content
	Height int // Height of the scaled content
}

// Fit computes the aspect-preserving placement of a srcWidth x srcHeight image inside
// a width x height cell. The scale is min(width/srcWidth, height/srcHeight), and the
// content is centered, with integer floor division of the leftover space.
func Fit(srcWidth, srcHeight, width, height int) Placement {
	scale := min(float64(width)/float64(srcWidth), float64(height)/float64(srcHeight))
	sw := clamp(int(float64(srcWidth)*scale+0.5), 1, width)
	sh := clamp(int(float64(srcHeight)*scale+0.5), 1, height)
	return Placement{
		X:      (width - sw) / 2,
		Y:      (height - sh) / 2,
		Width:  sw,
		Height: sh,
	}
}

// ResizeWithPad scales img uniformly so that it fits inside width x height, and pastes it
// into the center of a new width x height canvas filled with pad.
// The result is always 24-bit RGB, regardless of the channel count of img.
func ResizeWithPad(img *cimg.Image, width, height int, pad color.RGBA) *cimg.Image {
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	canvas := imagex.NewFilled(width, height, pad)
	p := Fit(img.Width, img.Height, width, height)
	content := img
	if p.Width != img.Width || p.Height != img.Height {
		// CatmullRom is the sharpest of the stbir filters, and this is an offline job, so we can afford it
		params := cimg.ResizeParams{Filter: cimg.ResizeFilterCatmullRom}
		content = cimg.ResizeNew(img, p.Width, p.Height, &params)
	}
	canvas.CopyImageRect(content, 0, 0, p.Width, p.Height, p.X, p.Y)
	return canvas
}

// Compose concatenates images left to right, in the order given.
// Every image must be exactly width x height RGB. Image i is placed at x = i * width.
func Compose(images []*cimg.Image, width, height int) (*cimg.Image, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	for i, img := range images {
		if img.Width != width || img.Height != height || img.NChan() != 3 {
			return nil, fmt.Errorf("Image %v is %vx%vx%v, but expected %vx%vx3", i, img.Width, img.Height, img.NChan(), width, height)
		}
	}
	canvas := cimg.NewImage(width*len(images), height, cimg.PixelFormatRGB)
	for i, img := range images {
		canvas.CopyImageRect(img, 0, 0, width, height, i*width, 0)
	}
	return canvas, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
