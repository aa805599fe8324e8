// Package imagex loads source images of any of our supported formats into 24-bit RGB cimg images,
// and encodes our output images.
package imagex

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/disintegration/imaging"
)

// File extensions that we're able to decode (lower case, with the dot)
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// Default JPEG quality of our generated images
const DefaultJPEGQuality = 95

var ErrEmptyImage = errors.New("Image has zero width or height")

// IsSupported returns true if the filename has one of our supported image extensions (case-insensitive)
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImages returns the sorted names (not full paths) of the supported image files inside dir.
// Subdirectories are ignored.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// HasImages returns true if dir contains at least one supported image file
func HasImages(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && IsSupported(e.Name()) {
			return true, nil
		}
	}
	return false, nil
}

func isJPEG(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xff && b[1] == 0xd8 && b[2] == 0xff
}

// Decode an encoded image (jpeg, png, gif, bmp) into an RGB image.
// JPEGs go through libjpeg-turbo. Everything else goes through the Go decoders.
// EXIF orientation is applied on both paths, so the result is upright.
func Decode(b []byte) (*cimg.Image, error) {
	if isJPEG(b) {
		img, err := cimg.Decompress(b)
		if err == nil {
			if img.Width == 0 || img.Height == 0 {
				return nil, ErrEmptyImage
			}
			if img.NChan() != 3 {
				img = img.ToRGB()
			}
			return unrotateJPEG(b, img), nil
		}
		// Fall through to the Go decoder, which is more forgiving of odd JPEGs
	}
	src, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return FromImage(src)
}

// unrotateJPEG applies the EXIF orientation of a JPEG to its decoded pixels.
// cimg can only undo pure rotations (orientations 3, 6, 8). Mirrored orientations are rare in
// camera output, and are left as decoded.
func unrotateJPEG(jpeg []byte, img *cimg.Image) *cimg.Image {
	exif, err := cimg.LoadExif(jpeg)
	if err != nil {
		return img
	}
	orient := exif.GetOrientation()
	if orient != 3 && orient != 6 && orient != 8 {
		return img
	}
	unrotated, err := cimg.UnrotateExif(orient, img)
	if err != nil {
		return img
	}
	return unrotated
}

// ReadFile reads and decodes an image file into an RGB image
func ReadFile(filename string) (*cimg.Image, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	img, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode %v: %w", filename, err)
	}
	return img, nil
}

// FromImage converts a Go image into a 24-bit RGB image.
// Alpha is discarded (not blended), so a transparent pixel keeps its underlying color.
func FromImage(src image.Image) (*cimg.Image, error) {
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}
	// imaging.Clone normalizes paletted, gray16, YCbCr etc into a packed NRGBA, which cimg can wrap
	rgba, err := cimg.FromImage(imaging.Clone(src), true)
	if err != nil {
		return nil, err
	}
	return rgba.ToRGB(), nil
}

// NewFilled creates an RGB image filled with a solid color
func NewFilled(width, height int, c color.RGBA) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	if c.R == 0 && c.G == 0 && c.B == 0 {
		// NewImage is zero-initialized
		return img
	}
	for y := 0; y < height; y++ {
		row := img.Pixels[y*img.Stride:]
		for x := 0; x < width; x++ {
			row[x*3] = c.R
			row[x*3+1] = c.G
			row[x*3+2] = c.B
		}
	}
	return img
}

// At returns the RGB value at x,y
func At(img *cimg.Image, x, y int) (r, g, b uint8) {
	p := img.Pixels[y*img.Stride+x*3:]
	return p[0], p[1], p[2]
}

// EncodeJPEG compresses an RGB image to JPEG, with 4:4:4 chroma sampling
func EncodeJPEG(img *cimg.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling444, quality, 0))
}
