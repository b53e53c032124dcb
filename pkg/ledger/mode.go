package ledger

import "fmt"

// Mode selects how mutations touching several budgets are persisted. It is chosen once on startup.
type Mode int

const (
	// Transactional applies a mutation inside one serializable database transaction.
	Transactional Mode = iota
	// Fallback applies a mutation as a sequence of conditional updates, compensated on failure.
	Fallback
)

func (m Mode) String() string {
	switch m {
	case Transactional:
		return "transactional"
	case Fallback:
		return "fallback"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}
