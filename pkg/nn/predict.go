package nn

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bmharper/cimg/v2"
)

// Detection is a label whose probability reached its threshold
type Detection struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// Prediction is the result of classifying one image
type Prediction struct {
	ID            string             `json:"id"`
	Source        string             `json:"source"` // "upload" or "webcam"
	Time          time.Time          `json:"time"`
	Detected      map[string]float32 `json:"detected_labels"`
	Labels        []string           `json:"labels"`
	Probabilities []float32          `json:"probabilities"`
}

// Filter returns the labels whose probability is at or above their threshold, in label order.
// Labels without a threshold use DefaultProbabilityThreshold.
// If probs and labels differ in length, the extra elements of the longer one are ignored.
func Filter(probs []float32, labels []string, thresholds *Thresholds) []Detection {
	out := []Detection{}
	for i := 0; i < min(len(probs), len(labels)); i++ {
		if probs[i] >= thresholds.Get(labels[i]) {
			out = append(out, Detection{Label: labels[i], Probability: probs[i]})
		}
	}
	return out
}

// DetectionMap converts a list of detections into a label -> probability map
func DetectionMap(detections []Detection) map[string]float32 {
	m := map[string]float32{}
	for _, d := range detections {
		m[d.Label] = d.Probability
	}
	return m
}

// SortByProbability sorts detections from most to least likely
func SortByProbability(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Probability > detections[j].Probability
	})
}

// Sigmoid converts logits into probabilities, in place
func Sigmoid(v []float32) {
	for i, x := range v {
		v[i] = float32(1 / (1 + math.Exp(-float64(x))))
	}
}

// Preprocess resizes img to the model input size (ignoring aspect ratio, the same as training),
// and converts it to a float32 tensor with values in [0,1].
// The returned slice is in the model's layout (NHWC or NCHW), for a batch size of 1.
func Preprocess(img *cimg.Image, config *ModelConfig) ([]float32, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("Empty image")
	}
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	if img.Width != config.Width || img.Height != config.Height {
		img = cimg.ResizeNew(img, config.Width, config.Height, &cimg.ResizeParams{CheapSRGBFilter: true, Filter: cimg.ResizeFilterCatmullRom})
	}
	w := config.Width
	h := config.Height
	out := make([]float32, w*h*3)
	const scale = 1.0 / 255
	if config.Layout == LayoutNCHW {
		plane := w * h
		for y := 0; y < h; y++ {
			src := img.Pixels[y*img.Stride:]
			for x := 0; x < w; x++ {
				p := y*w + x
				out[p] = float32(src[x*3]) * scale
				out[plane+p] = float32(src[x*3+1]) * scale
				out[2*plane+p] = float32(src[x*3+2]) * scale
			}
		}
	} else {
		for y := 0; y < h; y++ {
			src := img.Pixels[y*img.Stride : y*img.Stride+w*3]
			dst := out[y*w*3 : (y+1)*w*3]
			for i, v := range src {
				dst[i] = float32(v) * scale
			}
		}
	}
	return out, nil
}
