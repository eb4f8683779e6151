package mask

import (
	"errors"
	"fmt"
)

// ErrUnsaveable is returned when persisting a preset layout.
var ErrUnsaveable = errors.New("configuration is not saveable")

// LookupError reports an edit that names a row or target with no matching
// slit. It means the caller and the configuration disagree.
type LookupError struct {
	Row    int
	Target string
	Reason string
}

func (e *LookupError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("row %d target %q: %s", e.Row, e.Target, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}
