package cycle

// Status is a cycle group's terminal disposition. Exhaustion and timeout are
// expected outcomes of iterative refinement, not errors: the caller receives
// the last iteration's outputs either way and decides what to do with them.
type Status string

const (
	// StatusConverged means the convergence check or callback reported true.
	StatusConverged Status = "CONVERGED"

	// StatusExhausted means max_iterations elapsed without convergence.
	StatusExhausted Status = "EXHAUSTED"

	// StatusTimedOut means the cycle's wall-clock budget elapsed.
	StatusTimedOut Status = "TIMED_OUT"

	// StatusCancelled means the run-level cancellation signal was observed
	// at a node or iteration boundary.
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is a terminal status. All defined statuses are;
// the zero value is not.
func (s Status) Terminal() bool {
	switch s {
	case StatusConverged, StatusExhausted, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}
