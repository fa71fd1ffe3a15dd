package heap

import (
	"errors"
	"fmt"
)

// ErrDecode marks a record whose payload does not fit the page it applies
// to. Only that record is affected.
var ErrDecode = errors.New("heap: decode failed")

func decodeErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}
