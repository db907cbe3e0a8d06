package storage

import "time"

// SnapshotPolicy decides when the persistent store rewrites its metadata
// snapshot. EveryN and EveryInterval combine with OR: the snapshot is taken
// as soon as either triggers. Never limits snapshots to Close and Flush.
type SnapshotPolicy struct {
	// EveryN snapshots after every N mutations. Zero disables the trigger.
	EveryN int
	// EveryInterval snapshots when at least this much time passed since
	// the previous snapshot. Zero disables the trigger.
	EveryInterval time.Duration
	// Never suppresses automatic snapshots entirely.
	Never bool
}

// DefaultSnapshotPolicy snapshots after 100 mutations or 10 seconds,
// whichever comes first.
func DefaultSnapshotPolicy() SnapshotPolicy {
	return SnapshotPolicy{EveryN: 100, EveryInterval: 10 * time.Second}
}

// shouldSnapshot reports whether a snapshot is due after the given number
// of mutations since the last one.
func (p SnapshotPolicy) shouldSnapshot(mutations int, sinceLast time.Duration) bool {
	if p.Never {
		return false
	}
	if p.EveryN > 0 && mutations >= p.EveryN {
		return true
	}
	if p.EveryInterval > 0 && sinceLast >= p.EveryInterval {
		return true
	}
	return false
}
