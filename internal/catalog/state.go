package catalog

// WalkState is the state of one catalog walk.
//
// Valid state graph:
//
//	FETCHING ──► EXTRACTING ──► DONE
//	    ▲            │    │
//	    └────────────┘    └──► TRUNCATED
//	    │            │
//	    └────────────┴──► FAILED
//
// DONE, TRUNCATED and FAILED are terminal.
type WalkState string

const (
	StateFetching   WalkState = "FETCHING"
	StateExtracting WalkState = "EXTRACTING"
	StateDone       WalkState = "DONE"
	StateTruncated  WalkState = "TRUNCATED"
	StateFailed     WalkState = "FAILED"
)

var walkTransitions = map[WalkState][]WalkState{
	StateFetching:   {StateExtracting, StateFailed},
	StateExtracting: {StateFetching, StateDone, StateTruncated, StateFailed},
	// DONE, TRUNCATED and FAILED have no outgoing transitions
}

// IsWalkTransitionAllowed returns true when moving from → to is permitted.
func IsWalkTransitionAllowed(from, to WalkState) bool {
	for _, s := range walkTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends a walk.
func IsTerminal(s WalkState) bool {
	return s == StateDone || s == StateTruncated || s == StateFailed
}
