package atomicfile

import "errors"

// ErrLocked is returned by AcquireLock when another process already holds
// the lock — the orchestrator's "second orchestrator on the same store
// fails fast" requirement (spec §5).
var ErrLocked = errors.New("atomicfile: already locked by another process")
