package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/imagex"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"github.com/cyclopcam/trashcam/pkg/nnload"
	"github.com/cyclopcam/trashcam/pkg/taxonomy"
	"github.com/google/uuid"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("predict", "Classify image files, and print the detected labels as JSON")
	inputs := parser.StringList("i", "input", &argparse.Options{Help: "Input image file. May be repeated", Required: true})
	modelFile := parser.String("n", "model", &argparse.Options{Help: "Path to NN model, without extension (eg models/trashcam for models/trashcam.json + models/trashcam.onnx)", Required: true})
	thresholdsFile := parser.String("t", "thresholds", &argparse.Options{Help: "Thresholds JSON file", Default: ""})
	output := parser.String("o", "output", &argparse.Options{Help: "Output JSON file (default stdout)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	model, err := nnload.Load(logger, nnload.Options{
		ModelDir:       filepath.Dir(*modelFile),
		ModelName:      strings.TrimSuffix(filepath.Base(*modelFile), ".onnx"),
		ThresholdsFile: *thresholdsFile,
		FallbackLabels: taxonomy.DefaultCategories,
	})
	check(err)
	defer model.Close()

	results := []*nn.Prediction{}
	for _, fn := range *inputs {
		img, err := imagex.ReadFile(fn)
		check(err)
		probs, err := model.Classifier.Classify(img)
		check(err)
		results = append(results, &nn.Prediction{
			ID:            uuid.NewString(),
			Source:        fn,
			Time:          time.Now().UTC(),
			Detected:      nn.DetectionMap(model.Detect(probs)),
			Labels:        model.Labels,
			Probabilities: probs,
		})
	}

	out := os.Stdout
	if *output != "" {
		out, err = os.Create(*output)
		check(err)
		defer out.Close()
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(results))
}
