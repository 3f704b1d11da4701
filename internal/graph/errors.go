package graph

import (
	"fmt"
	"strings"
)

// StructuralError is a fatal graph configuration error raised at build time:
// an unmarked cycle, a feedback edge without a safety limit, conflicting
// cycle settings, or a reference to an unknown node. It is never raised
// mid-run and never retried.
type StructuralError struct {
	Reason string
	Nodes  []string
}

func (e *StructuralError) Error() string {
	if len(e.Nodes) == 0 {
		return fmt.Sprintf("structural error: %s", e.Reason)
	}
	return fmt.Sprintf("structural error: %s (nodes: %s)", e.Reason, strings.Join(e.Nodes, ", "))
}

func structuralf(nodes []string, format string, args ...any) *StructuralError {
	return &StructuralError{Reason: fmt.Sprintf(format, args...), Nodes: nodes}
}
