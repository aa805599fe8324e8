package dataset

import (
	"encoding/csv"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/cyclopcam/trashcam/pkg/storage"
)

const splitEpsilon = 1e-9

// Row is one line of the label table
type Row struct {
	Index    int     // Example index
	Filename string  // Name of the image, relative to ImageDir
	Labels   []uint8 // Multi-hot, one entry per category in canonical order
}

// SplitCount returns the number of validation rows for a table of n rows, which is
// ceil(fraction * n). For example, 3 rows at 0.33 gives 1 validation row.
// The product is nudged down by splitEpsilon first, because float error would otherwise round
// exact products up (0.07 * 100 = 7.000000000000001).
func SplitCount(n int, fraction float64) int {
	nVal := int(math.Ceil(fraction*float64(n) - splitEpsilon))
	return max(0, min(nVal, n))
}

// Split shuffles the rows with a generator seeded from seed, and sends the first
// SplitCount(len(rows), fraction) of them to the validation set. The rest go to the training set.
// Both subsets are returned sorted by filename. The input slice is not modified.
func Split(rows []Row, fraction float64, seed uint64) (train, val []Row) {
	shuffled := make([]Row, len(rows))
	copy(shuffled, rows)
	rng := rand.New(rand.NewPCG(seed, 0))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	nVal := SplitCount(len(rows), fraction)
	val = shuffled[:nVal]
	train = shuffled[nVal:]
	sortRows(val)
	sortRows(train)
	return
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Filename < rows[j].Filename
	})
}

// WriteCSV writes the header "filename,<category>..." followed by one line per row
func WriteCSV(store storage.Storage, name string, categories []string, rows []Row) error {
	f, err := store.WriteFile(name)
	if err != nil {
		return &IOError{Op: "create", Path: store.Location(name), Err: err}
	}
	w := csv.NewWriter(f)
	header := append([]string{"filename"}, categories...)
	w.Write(header)
	record := make([]string, len(header))
	for _, r := range rows {
		record[0] = r.Filename
		for i, v := range r.Labels {
			record[i+1] = strconv.Itoa(int(v))
		}
		w.Write(record)
	}
	w.Flush()
	err = w.Error()
	if errClose := f.Close(); err == nil {
		err = errClose
	}
	if err != nil {
		return &IOError{Op: "write", Path: store.Location(name), Err: err}
	}
	return nil
}

// ReadCSV reads a label table written by WriteCSV.
// Row.Index is the line number (starting at 0), not the example index.
func ReadCSV(store storage.Storage, name string) (categories []string, rows []Row, err error) {
	f, err := store.ReadFile(name)
	if err != nil {
		return nil, nil, &IOError{Op: "open", Path: store.Location(name), Err: err}
	}
	defer f.Reader.Close()
	records, err := csv.NewReader(f.Reader).ReadAll()
	if err != nil {
		return nil, nil, &IOError{Op: "parse", Path: store.Location(name), Err: err}
	}
	if len(records) == 0 {
		return nil, nil, &IOError{Op: "parse", Path: store.Location(name), Err: csv.ErrFieldCount}
	}
	categories = records[0][1:]
	for i, rec := range records[1:] {
		row := Row{
			Index:    i,
			Filename: rec[0],
			Labels:   make([]uint8, len(rec)-1),
		}
		for j, s := range rec[1:] {
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, nil, &IOError{Op: "parse", Path: store.Location(name), Err: err}
			}
			row.Labels[j] = uint8(v)
		}
		rows = append(rows, row)
	}
	return
}
