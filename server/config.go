package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/trashcam/pkg/storage"
)

const DefaultMaxUploadBytes = 5 * 1024 * 1024
const DefaultRateLimit = 60

type Config struct {
	Listen         string         `json:"listen"`         // eg ":8080"
	ModelDir       string         `json:"modelDir"`       // Directory holding <modelName>.json and <modelName>.onnx
	ModelName      string         `json:"modelName"`      // eg "mobilenetv2_224"
	ModelURL       string         `json:"modelURL"`       // If not empty, download missing model files from here
	ThresholdsFile string         `json:"thresholdsFile"` // JSON object of label -> threshold
	TaxonomyFile   string         `json:"taxonomyFile"`   // Optional. Provides the fallback label order.
	DBFile         string         `json:"dbFile"`         // sqlite prediction history. Empty disables the history.
	Storage        storage.Config `json:"storage"`        // Where uploads are stored
	KeepUploads    bool           `json:"keepUploads"`    // If false, uploads are deleted after classification
	MaxUploadBytes int64          `json:"maxUploadBytes"`
	RateLimit      int            `json:"rateLimit"`    // Max classification requests per minute, per IP
	HotReloadWWW   bool           `json:"hotReloadWWW"` // Serve the UI from server/www on disk, instead of the embedded copy
}

func DefaultConfig() Config {
	return Config{
		Listen:         ":8080",
		ModelDir:       "model",
		ModelName:      "trashcam",
		ThresholdsFile: "model/thresholds.json",
		DBFile:         "data/predictions.sqlite",
		Storage: storage.Config{
			Filesystem: &storage.ConfigFS{Root: "data"},
		},
		MaxUploadBytes: DefaultMaxUploadBytes,
		RateLimit:      DefaultRateLimit,
	}
}

// LoadConfig reads a JSON config file. Fields that are missing from the file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	return &cfg, nil
}
