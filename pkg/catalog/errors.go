package catalog

import (
	"fmt"
	"strings"
)

// ConfigurationError is a fatal problem with the inputs, detected before any work starts.
type ConfigurationError struct {
	Categories []string // Categories that have no source folders, if that is the problem
	Msg        string
}

func (e *ConfigurationError) Error() string {
	if len(e.Categories) != 0 {
		return fmt.Sprintf("%v: %v", e.Msg, strings.Join(e.Categories, ", "))
	}
	return e.Msg
}

// MissingSourceError is returned when a category has no usable image at pick time.
// Generation skips the example and carries on.
type MissingSourceError struct {
	Category string
	Folder   string // Empty if the category has no folders at all
	Err      error  // Why the folder could not be listed, if that was the problem
}

func (e *MissingSourceError) Error() string {
	if e.Folder == "" {
		return fmt.Sprintf("No source folders for category '%v'", e.Category)
	}
	if e.Err != nil {
		return fmt.Sprintf("Failed to list folder %v (category '%v'): %v", e.Folder, e.Category, e.Err)
	}
	return fmt.Sprintf("No images in folder %v (category '%v')", e.Folder, e.Category)
}

func (e *MissingSourceError) Unwrap() error {
	return e.Err
}
