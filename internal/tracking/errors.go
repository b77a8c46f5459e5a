package tracking

import "errors"

// ErrContentPreparation means the campaign HTML could not be turned into a
// base document. It aborts the run.
var ErrContentPreparation = errors.New("tracking: failed to prepare campaign HTML")
