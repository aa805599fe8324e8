// Package predictiondb keeps a history of our predictions, so that the UI can show recent results,
// and so that we can later pick out misclassified images.
package predictiondb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trashcam/pkg/nn"
	"gorm.io/gorm"
)

type PredictionDB struct {
	log logs.Log
	db  *gorm.DB
}

// Open or create the prediction DB
func Open(log logs.Log, dbFilename string) (*PredictionDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbFilename), 0770); err != nil {
		return nil, err
	}
	log.Infof("Opening prediction DB at '%v'", dbFilename)
	db, err := dbh.OpenDB(log, dbh.MakeSqliteConfig(dbFilename), Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &PredictionDB{
		log: log,
		db:  db,
	}, nil
}

func (p *PredictionDB) Close() {
	if sqlDB, err := p.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// Add records a prediction
func (p *PredictionDB) Add(pred *nn.Prediction) error {
	rec := &Prediction{
		UUID:   pred.ID,
		Source: pred.Source,
		Time:   dbh.MakeIntTime(pred.Time),
		Detail: &dbh.JSONField[DetailJSON]{
			Data: DetailJSON{
				Detected:      pred.Detected,
				Labels:        pred.Labels,
				Probabilities: pred.Probabilities,
			},
		},
	}
	return p.db.Create(rec).Error
}

// Recent returns the most recent predictions, newest first.
// If source is not empty, only predictions from that source are returned.
func (p *PredictionDB) Recent(limit int, source string) ([]nn.Prediction, error) {
	recs := []Prediction{}
	q := p.db.Order("time DESC, id DESC").Limit(limit)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]nn.Prediction, 0, len(recs))
	for _, r := range recs {
		pred := nn.Prediction{
			ID:     r.UUID,
			Source: r.Source,
			Time:   r.Time.Get(),
		}
		if r.Detail != nil {
			pred.Detected = r.Detail.Data.Detected
			pred.Labels = r.Detail.Data.Labels
			pred.Probabilities = r.Detail.Data.Probabilities
		}
		out = append(out, pred)
	}
	return out, nil
}

// Count returns the number of predictions from each source
func (p *PredictionDB) Count() (map[string]int64, error) {
	type row struct {
		Source string
		N      int64
	}
	rows := []row{}
	if err := p.db.Raw("SELECT source, COUNT(*) AS n FROM prediction GROUP BY source").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, r := range rows {
		counts[r.Source] = r.N
	}
	return counts, nil
}
