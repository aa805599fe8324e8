package dataset

import (
	"github.com/cyclopcam/logs"
)

// Report summarizes a generation run
type Report struct {
	Requested  int
	Generated  int
	Failed     int
	Train      int
	Val        int
	Categories []string
	Positives  []int // Number of rows containing each category, in canonical order
}

func (g *Generator) makeReport(res *Result) Report {
	r := Report{
		Requested:  g.opts.Count,
		Generated:  len(res.Rows),
		Failed:     len(res.Errors),
		Train:      len(res.Train),
		Val:        len(res.Val),
		Categories: g.tx.Categories(),
		Positives:  make([]int, g.tx.Len()),
	}
	for _, row := range res.Rows {
		for i, v := range row.Labels {
			r.Positives[i] += int(v)
		}
	}
	return r
}

// Log prints the summary statistics
func (r *Report) Log(log logs.Log) {
	log.Infof("Generated %v of %v examples (%v failed)", r.Generated, r.Requested, r.Failed)
	if r.Generated == 0 {
		return
	}
	log.Infof("Train: %v, validation: %v", r.Train, r.Val)
	for i, c := range r.Categories {
		log.Infof("  %-10v %6v (%.1f%%)", c, r.Positives[i], 100*float64(r.Positives[i])/float64(r.Generated))
	}
}
