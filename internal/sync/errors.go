package sync

import (
	"errors"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
)

// ErrTransient wraps any inbound task failure that is worth retrying.
// Tasks failing with other error classes are dropped immediately.
var ErrTransient = errors.New("transient sync failure")

// isNotFound reports whether err means a referenced record or node is
// missing on either side. Missing records are generally "nothing to do",
// not failures.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, nativetree.ErrNotFound)
}

// isRetryable reports whether a failed inbound task should go back on
// the queue. Validation errors and unavailable-gateway errors never
// succeed on retry within a task's lifetime budget the way transient
// store contention does, but the gateway may reconnect, so only
// validation failures are terminal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, store.ErrValidation) {
		return false
	}
	return true
}
