package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/amflow/internal/store"
)

// openDatabase opens an existing play database for inspection. Unlike
// store.Open it refuses to create a missing file.
func openDatabase(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
		return nil, WrapExitError(ExitCommandError, "failed to stat database", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
