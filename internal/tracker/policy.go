package tracker

// WritePolicy decides what happens to the local state when a save fails.
// In both policies the local state changes before the save is issued.
type WritePolicy int

const (
	// OptimisticWriteThrough keeps the local change after a failed save and
	// reports the failure. The view may then show state the store does not
	// have until the next Load.
	OptimisticWriteThrough WritePolicy = iota
	// RollbackOnFailure restores the previous local state after a failed save,
	// unless a later action has changed the execution since.
	RollbackOnFailure
)

func (p WritePolicy) String() string {
	switch p {
	case OptimisticWriteThrough:
		return "optimistic"
	case RollbackOnFailure:
		return "rollback"
	}
	return "unknown"
}

// ParseWritePolicy parses the names returned by String.
func ParseWritePolicy(s string) (WritePolicy, bool) {
	switch s {
	case "optimistic", "":
		return OptimisticWriteThrough, true
	case "rollback":
		return RollbackOnFailure, true
	}
	return OptimisticWriteThrough, false
}
