package server

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/trashcam/pkg/imagex"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"github.com/fogleman/gg"
)

const annotateJPEGQuality = 85

// annotate draws the detected labels in a banner at the top of the image, and returns a JPEG
func annotate(img *cimg.Image, detections []nn.Detection) ([]byte, error) {
	base, err := img.ToImage()
	if err != nil {
		return nil, err
	}
	dc := gg.NewContextForImage(base)
	lines := []string{}
	sorted := append([]nn.Detection{}, detections...)
	nn.SortByProbability(sorted)
	for _, d := range sorted {
		lines = append(lines, fmt.Sprintf("%v %.0f%%", d.Label, d.Probability*100))
	}
	if len(lines) == 0 {
		lines = append(lines, "No trash detected")
	}

	const lineHeight = 16.0
	const margin = 6.0
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(0, 0, float64(img.Width), lineHeight*float64(len(lines))+margin)
	dc.Fill()
	if len(detections) == 0 {
		dc.SetRGB(1, 0.8, 0.2)
	} else {
		dc.SetRGB(0.4, 1, 0.4)
	}
	for i, line := range lines {
		dc.DrawString(line, margin, lineHeight*float64(i+1))
	}

	out, err := imagex.FromImage(dc.Image())
	if err != nil {
		return nil, err
	}
	return imagex.EncodeJPEG(out, annotateJPEGQuality)
}
