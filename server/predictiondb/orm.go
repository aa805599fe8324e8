package predictiondb

import (
	"github.com/cyclopcam/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Prediction is one classified image
type Prediction struct {
	BaseModel
	UUID   string                     `json:"uuid"`
	Source string                     `json:"source"` // "upload" or "webcam"
	Time   dbh.IntTime                `json:"time"`
	Detail *dbh.JSONField[DetailJSON] `json:"detail"`
}

type DetailJSON struct {
	Detected      map[string]float32 `json:"detected"`
	Labels        []string           `json:"labels"`
	Probabilities []float32          `json:"probabilities"`
}
