package event_bus

import (
	"time"

	"github.com/google/uuid"
)

const TransactionRecordedEvent EventType = "ledger.transaction.recorded"

// TransactionRecorded is published after an expense or a gain has been persisted.
type TransactionRecorded struct {
	UserId        int
	TransactionId uuid.UUID
	Type          string
	Date          time.Time
}
