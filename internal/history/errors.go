package history

import "errors"

// ErrInvalidEntry indicates an entry or query is missing its controller,
// device or property.
var ErrInvalidEntry = errors.New("history: invalid entry")
