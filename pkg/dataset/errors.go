package dataset

import (
	"fmt"

	"github.com/cyclopcam/trashcam/pkg/catalog"
)

// These originate in the catalog, but callers of the generator should not need to import it.
type ConfigurationError = catalog.ConfigurationError
type MissingSourceError = catalog.MissingSourceError

// IOError is a failure to read, decode, encode, or write an image or output file
type IOError struct {
	Op   string // eg "decode", "write"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("Failed to %v %v: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
