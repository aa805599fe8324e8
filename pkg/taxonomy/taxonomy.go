// Package taxonomy defines the closed set of trash categories that we classify,
// and the aliases that map the folder names of public datasets onto those categories.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Default categories, in canonical order.
// The order matters: it is the column order of our label CSVs, and the output order of the classifier.
var DefaultCategories = []string{
	"battery",
	"organic",
	"glass",
	"cardboard",
	"metal",
	"paper",
	"plastic",
	"trash",
}

// DefaultAliases maps the folder names of the datasets that we train from onto our categories.
// TrashNet uses cardboard/glass/metal/paper/plastic/trash. The Kaggle "garbage classification"
// set adds battery, biological, and splits glass by color.
var DefaultAliases = map[string]string{
	"battery":     "battery",
	"batteries":   "battery",
	"organic":     "organic",
	"organik":     "organic",
	"biological":  "organic",
	"food":        "organic",
	"glass":       "glass",
	"brown-glass": "glass",
	"green-glass": "glass",
	"white-glass": "glass",
	"cardboard":   "cardboard",
	"metal":       "metal",
	"paper":       "paper",
	"plastic":     "plastic",
	"trash":       "trash",
}

// Config is the JSON representation of a Taxonomy
type Config struct {
	Categories []string          `json:"categories"` // Canonical order
	Aliases    map[string]string `json:"aliases"`    // Raw folder name -> category
}

// Taxonomy is an ordered set of categories, plus the alias map that resolves raw folder names.
// Once created, a Taxonomy is read-only, so it is safe to share between goroutines.
type Taxonomy struct {
	categories []string
	index      map[string]int
	aliases    map[string]string
}

// Create a new taxonomy, and validate it.
func New(categories []string, aliases map[string]string) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, errors.New("No categories specified")
	}
	t := &Taxonomy{
		categories: append([]string{}, categories...),
		index:      map[string]int{},
		aliases:    map[string]string{},
	}
	for i, c := range categories {
		if c == "" || strings.ContainsAny(c, ",\"\n\r") {
			return nil, fmt.Errorf("Invalid category name '%v'", c)
		}
		if _, ok := t.index[c]; ok {
			return nil, fmt.Errorf("Duplicate category '%v'", c)
		}
		t.index[c] = i
	}
	for raw, cat := range aliases {
		if _, ok := t.index[cat]; !ok {
			return nil, fmt.Errorf("Alias '%v' refers to unknown category '%v'", raw, cat)
		}
		t.aliases[raw] = cat
	}
	if missing := t.Unaliased(); len(missing) != 0 {
		return nil, fmt.Errorf("Categories have no source folder alias: %v", strings.Join(missing, ", "))
	}
	return t, nil
}

// Default returns the built-in taxonomy
func Default() *Taxonomy {
	t, err := New(DefaultCategories, DefaultAliases)
	if err != nil {
		panic(err)
	}
	return t
}

// Load a taxonomy from a JSON file.
// If the file omits categories, the default categories are used.
// If the file omits aliases, every category is an alias of itself.
func LoadFile(filename string) (*Taxonomy, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg := Config{}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("Error parsing taxonomy file %v: %w", filename, err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories
	}
	if len(cfg.Aliases) == 0 {
		cfg.Aliases = map[string]string{}
		for _, c := range cfg.Categories {
			cfg.Aliases[c] = c
		}
	}
	return New(cfg.Categories, cfg.Aliases)
}

// Categories returns a copy of the categories, in canonical order
func (t *Taxonomy) Categories() []string {
	return append([]string{}, t.categories...)
}

// Number of categories
func (t *Taxonomy) Len() int {
	return len(t.categories)
}

// Return the category at index i
func (t *Taxonomy) Category(i int) string {
	return t.categories[i]
}

// Index returns the canonical position of the category, or -1
func (t *Taxonomy) Index(category string) int {
	if i, ok := t.index[category]; ok {
		return i
	}
	return -1
}

// Resolve maps a raw folder name to a category
func (t *Taxonomy) Resolve(folderName string) (string, bool) {
	c, ok := t.aliases[folderName]
	return c, ok
}

// Unaliased returns the categories that no alias maps to, in canonical order
func (t *Taxonomy) Unaliased() []string {
	have := map[string]bool{}
	for _, c := range t.aliases {
		have[c] = true
	}
	missing := []string{}
	for _, c := range t.categories {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// Config returns the JSON representation of the taxonomy
func (t *Taxonomy) Config() Config {
	cfg := Config{
		Categories: t.Categories(),
		Aliases:    map[string]string{},
	}
	for k, v := range t.aliases {
		cfg.Aliases[k] = v
	}
	return cfg
}
