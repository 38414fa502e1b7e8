package cerr

import (
	"database/sql"
	"errors"
	"fmt"
)

// WrapStoreReadError converts a database read failure into a coded error,
// mapping sql.ErrNoRows to NotFound.
func WrapStoreReadError(resource string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return NewError(NotFound, fmt.Sprintf("%s not found", resource), err)
	}
	return NewError(Unavailable, fmt.Sprintf("failed to read %s", resource), err)
}

func WrapStoreWriteError(resource string, err error) error {
	return NewError(Unavailable, fmt.Sprintf("failed to write %s", resource), err)
}
