// state.go - Auction lifecycle states.

package auction

// State is the auction lifecycle tag. Open -> ClosedUnsettled is implicit and
// time-based; ClosedUnsettled -> Settled happens exactly once via Finalize.
// There is no cancellation or reopening path.
type State int

const (
	Open State = iota
	ClosedUnsettled
	Settled
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case ClosedUnsettled:
		return "closed-unsettled"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}
